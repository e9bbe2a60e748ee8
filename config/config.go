// Package config loads the TOML configuration file spec.md §6 lists
// as a node's construction-time options, producing a server.Config.
// It follows the same tomlSettings/FieldToKey convention
// ethereumproject-go-ethereum's cmd/geth config loader uses around
// github.com/naoina/toml: TOML keys are matched to struct fields by
// their exact Go field name (FieldToKey's lower-casing applies only
// when encoding), and unknown keys are rejected rather than silently
// ignored.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/server"
	"github.com/kademlan/kadlan/storage"
	"github.com/naoina/toml"
)

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return strings.ToLower(field)
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("config: unknown key %q for %s", field, rt.String())
	},
}

// File is the on-disk shape of a node's TOML configuration, one field
// per spec.md §6 configuration option. Durations are given in seconds.
type File struct {
	Port            int
	KSize           int
	Alpha           int
	NodeID          string // hex-encoded 160-bit id; blank means random
	RPCTimeoutSecs  int
	RefreshSecs     int
	BeaconSecs      int
	GetPeersSecs    int
	StateFile       string
	StorageTTLHours int
}

// Load reads and parses the TOML file at path.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a TOML configuration from r.
func Decode(r io.Reader) (File, error) {
	var cfg File
	if err := tomlSettings.NewDecoder(r).Decode(&cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}

// ToServerConfig converts a parsed File into a server.Config, leaving
// zero-valued fields for server.Config.withDefaults to fill in.
func (f File) ToServerConfig() (server.Config, error) {
	cfg := server.Config{
		Port:             f.Port,
		K:                f.KSize,
		Alpha:            f.Alpha,
		RPCTimeout:       time.Duration(f.RPCTimeoutSecs) * time.Second,
		RefreshInterval:  time.Duration(f.RefreshSecs) * time.Second,
		BeaconInterval:   time.Duration(f.BeaconSecs) * time.Second,
		GetPeersInterval: time.Duration(f.GetPeersSecs) * time.Second,
	}
	if f.NodeID != "" {
		id, err := kadlan.ParseID(f.NodeID)
		if err != nil {
			return server.Config{}, err
		}
		cfg.NodeID = id
	}
	if f.StorageTTLHours > 0 {
		cfg.Storage = storage.NewTTLStore(time.Duration(f.StorageTTLHours) * time.Hour)
	}
	return cfg, nil
}
