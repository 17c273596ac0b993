// Package profile implements the profile database of spec §6 "Profile
// database format": a per-device table of candidate-template constructor
// parameter lists and an optional random-forest predictor, keyed by
// operation kind and element dtype. A built-in table ships with the
// binary; LoadOverride merges a user's JSON file on top of it for one
// device, matching the "$HOME/.isaac/devices/device0.json ... merged on
// top of the built-in database" behavior.
package profile

import (
	"encoding/json"
	"os"
	"sync"

	"isaac/internal/driver"
	"isaac/internal/forest"
	"isaac/internal/ierrors"
	"isaac/internal/scheduler"
)

// Entry is one (kind, dtype)'s profile data: the ordered candidate
// parameter lists (one per constructor, spec §4.3's per-template
// parameter tuples) and an optional trained predictor ranking them.
type Entry struct {
	Profiles  [][]int64      `json:"profiles"`
	Predictor *forest.Forest `json:"predictor,omitempty"`
}

// operationEntries maps a dtype spelling ("float32", "float64", ...) to
// its Entry.
type operationEntries map[string]Entry

// deviceProfile maps an operation kind spelling (scheduler.Kind.String())
// to its operationEntries.
type deviceProfile map[string]operationEntries

// Database is the full loaded profile table, keyed by device fingerprint.
type Database struct {
	mu      sync.RWMutex
	Devices map[string]deviceProfile `json:"devices"`
}

// DeviceKey fingerprints a device the way the profile database indexes
// it: vendor, architecture, and device type, matching the comment on
// driver.DeviceInfo ("the fingerprint used as the profile database's
// device key").
func DeviceKey(info driver.DeviceInfo) string {
	return info.Vendor + "|" + info.Architecture + "|" + info.DeviceType
}

// New returns a Database seeded with the built-in table.
func New() *Database {
	db := &Database{Devices: make(map[string]deviceProfile)}
	db.merge(builtin)
	return db
}

// Lookup returns the profile Entry for (device, kind, dtype), if any.
func (db *Database) Lookup(info driver.DeviceInfo, kind scheduler.Kind, dtype string) (Entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	dev, ok := db.Devices[DeviceKey(info)]
	if !ok {
		return Entry{}, false
	}
	ops, ok := dev[kind.String()]
	if !ok {
		return Entry{}, false
	}
	e, ok := ops[dtype]
	return e, ok
}

// RecordOverride appends params as one more candidate parameter tuple to
// the Entry for one device/kind/dtype, creating the entry if needed;
// existing tuples are kept. The dispatcher's tuning path does not call
// it: it records winners in its own in-memory override map.
func (db *Database) RecordOverride(deviceKey string, kind scheduler.Kind, dtype string, params []int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	dev, ok := db.Devices[deviceKey]
	if !ok {
		dev = make(deviceProfile)
		db.Devices[deviceKey] = dev
	}
	ops, ok := dev[kind.String()]
	if !ok {
		ops = make(operationEntries)
		dev[kind.String()] = ops
	}
	entry := ops[dtype]
	entry.Profiles = append(entry.Profiles, params)
	ops[dtype] = entry
}

// LoadOverride reads a user override file and merges it on top of the
// in-memory database (spec §6 "User override file ... merged on top of
// the built-in database for the active queue on first use"). A missing
// file is not an error; there is simply nothing to merge.
func (db *Database) LoadOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ierrors.Wrap(ierrors.RuntimeError, err, "profile: reading override %s", path)
	}
	var loaded Database
	if err := json.Unmarshal(data, &loaded); err != nil {
		return ierrors.Wrap(ierrors.RuntimeError, err, "profile: parsing override %s", path)
	}
	db.merge(loaded.Devices)
	return nil
}

func (db *Database) merge(devices map[string]deviceProfile) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for deviceKey, ops := range devices {
		dst, ok := db.Devices[deviceKey]
		if !ok {
			dst = make(deviceProfile)
			db.Devices[deviceKey] = dst
		}
		for kind, entries := range ops {
			dstEntries, ok := dst[kind]
			if !ok {
				dstEntries = make(operationEntries)
				dst[kind] = dstEntries
			}
			for dtype, e := range entries {
				dstEntries[dtype] = e
			}
		}
	}
}
