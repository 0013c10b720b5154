package testutil

import "sync"

// EtcdTestMutex serializes etcd integration tests within a test binary.
// Tests also use distinct key prefixes, so binaries running in parallel do not collide.
//
//	func TestSomethingWithEtcd(t *testing.T) {
//	    testutil.EtcdTestMutex.Lock()
//	    defer testutil.EtcdTestMutex.Unlock()
//	    // ... test code that uses etcd
//	}
var EtcdTestMutex sync.Mutex
