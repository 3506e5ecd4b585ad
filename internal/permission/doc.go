// Package permission provisions and revokes the capabilities a sale
// engine needs inside the host authorization system.
//
// At install time the Provisioner deploys and initializes a new
// sale.Engine for a DAO and returns exactly two grants:
//
//	Grant(asset,  engine, MINT_PERMISSION)
//	Grant(engine, dao,    CONFIGURE_SALE_PERMISSION)
//
// At uninstall time it returns the same triples with the operation
// flipped, computed only from the payload the host recorded at install,
// so removal works whatever state the engine is in.
//
// The Provisioner has no state of its own. Persisting and enforcing the
// grants is the registry's job; MemoryRegistry is the in-process
// registry used by the host simulator and the tests.
package permission
