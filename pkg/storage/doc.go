/*
Package storage provides BoltDB-backed persistence for the gateway.

The gateway is stateless about traffic but not about configuration:
registered service instances and issued API keys must survive a restart.
BoltStore keeps both in a single bbolt file under the data directory,
one bucket per entity type, values serialized as JSON.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/gateway.db               │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Buckets                          │          │
	│  │  instances  (key: service/instanceID)      │          │
	│  │  api_keys   (key: key ID)                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  Reads: db.View()  ─ concurrent snapshots                 │
	│  Writes: db.Update() ─ serialized, atomic                 │
	└────────────────────────────────────────────────────────┘

# Semantics

Saves are upserts: writing an existing key replaces the value
atomically. Deletes are idempotent and do not error on missing keys.
Gets return an error for missing keys; Lists return the full bucket.

Instance keys are "serviceName/instanceID" so a service's instances
cluster together in the B+tree.

# Usage

	store, err := storage.NewBoltStore("/var/lib/gateway")
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.SaveInstance(inst)
	insts, err := store.ListInstances()

	err = store.SaveAPIKey(key)
	keys, err := store.ListAPIKeys()

The Store interface covers the instance operations and embeds
auth.KeyStore; consumers depend on the interface, not on BoltStore.

# Integration Points

  - pkg/bridge: mirrors registry membership and restores it on boot
  - pkg/auth: API key persistence via the KeyStore interface

# Troubleshooting

Database Locked:
  - bbolt takes an exclusive file lock; only one gateway process may
    open a data directory at a time

File Growth:
  - bbolt does not compact in place; space from deleted keys is reused
    but the file never shrinks

# See Also

  - pkg/bridge for the restore-on-boot path
  - bbolt: https://github.com/etcd-io/bbolt
*/
package storage
