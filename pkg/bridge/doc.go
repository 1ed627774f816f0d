/*
Package bridge connects the in-memory registry to persistent storage.

The registry itself is deliberately volatile. The bridge wraps its
mutating operations (register, deregister, status report), validates
payloads, and mirrors accepted changes into the bolt store so that a
restarted gateway can restore its service membership without waiting
for every backend to re-register.

# Responsibilities

Write-Through:
  - Register/Deregister/ReportStatus apply to the registry first and
    mirror to the store on success
  - Validation failures surface as KindBadRequest before anything
    mutates

Restore:
  - On boot, replays the mirrored instances into a fresh registry
  - Entries the registry rejects (schema drift, corrupt rows) are
    dropped from the mirror rather than retried forever

Reconcile:
  - A background loop compares registry membership against the mirror
    and deregisters instances that exist only in memory, so state
    written behind the bridge's back does not survive

A nil store disables mirroring entirely; the bridge degrades to a thin
validation layer, which is how tests and ephemeral deployments run.

# Usage

	b := bridge.New(reg, store)
	if err := b.Restore(); err != nil {
		return err
	}
	b.Start()
	defer b.Stop()

	inst, err := b.Register(req)

# See Also

  - pkg/registry for the in-memory half
  - pkg/storage for the persistent half
*/
package bridge
