package repository

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS shipments (
    shipment_id       TEXT PRIMARY KEY,
    owner             TEXT NOT NULL DEFAULT '',
    body              TEXT NOT NULL,
    updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    shipment_id       TEXT NOT NULL REFERENCES shipments(shipment_id) ON DELETE CASCADE,
    event_key         TEXT NOT NULL,
    body              TEXT NOT NULL,
    UNIQUE (shipment_id, event_key)
);

CREATE TABLE IF NOT EXISTS alerts (
    shipment_id       TEXT PRIMARY KEY REFERENCES shipments(shipment_id) ON DELETE CASCADE,
    severity          TEXT NOT NULL,
    status            TEXT NOT NULL,
    risk_score        INTEGER NOT NULL,
    computed_at       TEXT NOT NULL,
    acknowledged_at   TEXT,
    stale             INTEGER NOT NULL DEFAULT 0,
    body              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_score ON alerts(risk_score DESC, shipment_id);
CREATE INDEX IF NOT EXISTS idx_alerts_computed ON alerts(computed_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS shipments (
    shipment_id       TEXT PRIMARY KEY,
    owner             TEXT NOT NULL DEFAULT '',
    body              JSONB NOT NULL,
    updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    seq               BIGSERIAL PRIMARY KEY,
    shipment_id       TEXT NOT NULL REFERENCES shipments(shipment_id) ON DELETE CASCADE,
    event_key         TEXT NOT NULL,
    body              JSONB NOT NULL,
    UNIQUE (shipment_id, event_key)
);

CREATE TABLE IF NOT EXISTS alerts (
    shipment_id       TEXT PRIMARY KEY REFERENCES shipments(shipment_id) ON DELETE CASCADE,
    severity          TEXT NOT NULL,
    status            TEXT NOT NULL,
    risk_score        INTEGER NOT NULL,
    computed_at       TEXT NOT NULL,
    acknowledged_at   TEXT,
    stale             INTEGER NOT NULL DEFAULT 0,
    body              JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_score ON alerts(risk_score DESC, shipment_id);
CREATE INDEX IF NOT EXISTS idx_alerts_computed ON alerts(computed_at);
`
