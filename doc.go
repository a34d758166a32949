// Package l0pool implements a same-host, multi-process, shared-memory
// backed key/value store.
//
// A pool is a named region of shared memory (internal/segment) holding a
// single serialized map of keys to dynamically typed values
// (internal/wire). Processes attach to a pool by name through a Manager,
// which hands out Clients; operations on a Client are safe across both
// goroutines within a process and other processes attached to the same
// pool.
//
//	mgr := l0pool.NewManager("")
//	client, err := mgr.Create("sessions", l0pool.CreateOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Set("user:42", "alice", 5*time.Minute); err != nil {
//		log.Fatal(err)
//	}
//
// Pools grow automatically as their contents outgrow the current segment,
// tolerate being read mid-write by another process (a torn read degrades to
// an empty result rather than an error), and can optionally encrypt their
// contents with an authenticated cipher.
package l0pool
