package main

var opts struct {
	Node struct {
		Ordinal int    `long:"ordinal" env:"ORDINAL" required:"true" description:"this node's ordinal in the topology file"`
		Name    string `long:"name" env:"NAME" description:"node name (defaults to node<ordinal>)"`
	} `group:"node" namespace:"node" env-namespace:"NODE"`

	Cluster struct {
		Topology       string `long:"topology" env:"TOPOLOGY" required:"true" description:"path to the TOML topology file"`
		GossipInterval int    `long:"gossip-interval" env:"GOSSIP_INTERVAL" default:"1000" description:"gossip round interval (ms)"`
		SuspectAfter   int    `long:"suspect-after" env:"SUSPECT_AFTER" default:"5000" description:"silence before a node is suspected (ms)"`
		DeadAfter      int    `long:"dead-after" env:"DEAD_AFTER" default:"30000" description:"silence before a node is declared dead (ms)"`
		Fanout         int    `long:"fanout" env:"FANOUT" default:"3" description:"peers contacted per gossip round"`
	} `group:"cluster" namespace:"cluster" env-namespace:"CLUSTER"`

	Storage struct {
		DataDir       string `long:"data-dir" env:"DATA_DIR" default:"/var/lib/aerodb" description:"data directory"`
		FlushInterval int    `long:"flush-interval" env:"FLUSH_INTERVAL" default:"10000" description:"memtable flush interval (ms)"`
	} `group:"storage" namespace:"storage" env-namespace:"STORAGE"`

	Replication struct {
		WriteTimeout int `long:"write-timeout" env:"WRITE_TIMEOUT" default:"5000" description:"replica write timeout (ms)"`
		ReadTimeout  int `long:"read-timeout" env:"READ_TIMEOUT" default:"5000" description:"replica read timeout (ms)"`
	} `group:"replication" namespace:"replication" env-namespace:"REPLICATION"`

	Verbose bool `long:"verbose" env:"VERBOSE" description:"verbose mode"`
}
