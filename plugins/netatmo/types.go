package netatmo

// Module type tags on the Netatmo account topology.
const (
	moduleTypeBridge = "BFII" // intercom hub relaying commands within a home
	moduleTypeDoor   = "BNDL" // controllable door-release device
)

// HomesData is the account topology returned by /homesdata.
type HomesData struct {
	Homes []Home `json:"homes"`
}

// Home is Netatmo's grouping of modules for one physical location.
type Home struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Timezone string   `json:"timezone"`
	Modules  []Module `json:"modules"`
}

// Module is one device within a home.
type Module struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// DoorModule is a controllable door flattened out of the topology, combined
// with the home it belongs to and the bridge that relays its commands.
type DoorModule struct {
	HomeID     string `json:"home_id"`
	HomeName   string `json:"home_name"`
	Timezone   string `json:"timezone"`
	BridgeID   string `json:"bridge_id"`
	ModuleID   string `json:"module_id"`
	ModuleName string `json:"module_name"`
}
