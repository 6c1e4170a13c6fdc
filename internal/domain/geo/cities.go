package geo

// builtin covers the main gateways seen in tracking data. Keys are normalized.
var builtin = map[string]Coord{
	"amsterdam":     {52.3676, 4.9041},
	"atlanta":       {33.7490, -84.3880},
	"bangkok":       {13.7563, 100.5018},
	"barcelona":     {41.3874, 2.1686},
	"beijing":       {39.9042, 116.4074},
	"berlin":        {52.5200, 13.4050},
	"busan":         {35.1796, 129.0756},
	"cairo":         {30.0444, 31.2357},
	"chicago":       {41.8781, -87.6298},
	"dallas":        {32.7767, -96.7970},
	"delhi":         {28.7041, 77.1025},
	"dubai":         {25.2048, 55.2708},
	"frankfurt":     {50.1109, 8.6821},
	"guangzhou":     {23.1291, 113.2644},
	"hamburg":       {53.5511, 9.9937},
	"hong kong":     {22.3193, 114.1694},
	"istanbul":      {41.0082, 28.9784},
	"jakarta":       {-6.2088, 106.8456},
	"johannesburg":  {-26.2041, 28.0473},
	"lagos":         {6.5244, 3.3792},
	"london":        {51.5074, -0.1278},
	"los angeles":   {34.0522, -118.2437},
	"madrid":        {40.4168, -3.7038},
	"melbourne":     {-37.8136, 144.9631},
	"memphis":       {35.1495, -90.0490},
	"mexico city":   {19.4326, -99.1332},
	"miami":         {25.7617, -80.1918},
	"milan":         {45.4642, 9.1900},
	"mumbai":        {19.0760, 72.8777},
	"new york":      {40.7128, -74.0060},
	"paris":         {48.8566, 2.3522},
	"rotterdam":     {51.9244, 4.4777},
	"santos":        {-23.9608, -46.3336},
	"sao paulo":     {-23.5505, -46.6333},
	"seattle":       {47.6062, -122.3321},
	"seoul":         {37.5665, 126.9780},
	"shanghai":      {31.2304, 121.4737},
	"shenzhen":      {22.5431, 114.0579},
	"singapore":     {1.3521, 103.8198},
	"sydney":        {-33.8688, 151.2093},
	"tokyo":         {35.6762, 139.6503},
	"toronto":       {43.6532, -79.3832},
	"vancouver":     {49.2827, -123.1207},
	"warsaw":        {52.2297, 21.0122},
	"san francisco": {37.7749, -122.4194},
	"long beach":    {33.7701, -118.1937},
	"antwerp":       {51.2194, 4.4025},
	"chennai":       {13.0827, 80.2707},
}
