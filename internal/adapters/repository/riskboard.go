package repository

import (
	"math/rand/v2"
	"sync"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/types"
	"github.com/okian/shipwatch/pkg/metrics"
)

// RiskBoard ranks open shipments by risk score.
//
// Ordering: score DESC, then shipment ID ASC (deterministic). The BST
// comparator treats "less" as "ranks earlier", so in-order traversal yields
// the board from riskiest to safest.
type RiskBoard struct {
	mu   sync.RWMutex
	root *node
	byID map[string]entry
}

type entry struct {
	score    int
	severity model.Severity
}

// treap node; size counts the subtree for O(log n) rank queries.
type node struct {
	id    string
	score int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) ranks before (bScore, bID).
func less(aScore int, aID string, bScore int, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score int) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score int) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// NewRiskBoard creates an empty board.
func NewRiskBoard() *RiskBoard {
	return &RiskBoard{byID: make(map[string]entry)}
}

// Upsert places the shipment at its current score. Completed and canceled
// shipments are taken off the board.
func (b *RiskBoard) Upsert(a model.Alert) {
	if a.Status == model.StatusCompleted || a.Status == model.StatusCanceled {
		b.Remove(a.ShipmentID)
		return
	}

	b.mu.Lock()
	if old, ok := b.byID[a.ShipmentID]; ok {
		if old.score == a.RiskScore {
			b.byID[a.ShipmentID] = entry{score: a.RiskScore, severity: a.Severity}
			b.mu.Unlock()
			return
		}
		b.root = deleteNode(b.root, a.ShipmentID, old.score)
	}
	b.byID[a.ShipmentID] = entry{score: a.RiskScore, severity: a.Severity}
	b.root = insert(b.root, a.ShipmentID, a.RiskScore)
	n := len(b.byID)
	b.mu.Unlock()

	metrics.UpdateRiskBoardSize(n)
}

// Remove drops the shipment; unknown IDs are ignored.
func (b *RiskBoard) Remove(shipmentID string) {
	b.mu.Lock()
	old, ok := b.byID[shipmentID]
	if ok {
		b.root = deleteNode(b.root, shipmentID, old.score)
		delete(b.byID, shipmentID)
	}
	n := len(b.byID)
	b.mu.Unlock()

	if ok {
		metrics.UpdateRiskBoardSize(n)
	}
}

// Rank returns the 1-based position of the shipment.
// Returns ErrNotFound if the shipment is not on the board.
func (b *RiskBoard) Rank(shipmentID string) (types.RiskEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.byID[shipmentID]
	if !ok {
		return types.RiskEntry{}, ErrNotFound
	}
	before := 0
	for n := b.root; n != nil; {
		if n.id == shipmentID && n.score == e.score {
			before += nsize(n.left)
			break
		}
		if less(e.score, shipmentID, n.score, n.id) {
			n = n.left
		} else {
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return types.RiskEntry{Rank: before + 1, ShipmentID: shipmentID, Score: e.score, Severity: e.severity}, nil
}

// TopN returns up to n entries, riskiest first.
func (b *RiskBoard) TopN(n int) ([]types.RiskEntry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.RiskEntry, 0, min(n, len(b.byID)))
	b.collect(b.root, n, &out)
	return out, nil
}

func (b *RiskBoard) collect(n *node, limit int, out *[]types.RiskEntry) {
	if n == nil || len(*out) >= limit {
		return
	}
	b.collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.RiskEntry{
			Rank:       len(*out) + 1,
			ShipmentID: n.id,
			Score:      n.score,
			Severity:   b.byID[n.id].severity,
		})
	}
	b.collect(n.right, limit, out)
}

// Count returns the number of shipments on the board.
func (b *RiskBoard) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
