// Package haproxy renders tunnel state into a complete haproxy.cfg and
// activates it.
//
// Rendering is a pure function of the TunnelSet: fixed global and defaults
// sections, one self-contained listen section per (tunnel, port), and a
// trailing blackhole backend.
//
// Activation never touches the live file until `haproxy -c` accepts the
// staged document:
//
//	stage -> check -> backup live -> deploy (rename) -> restart service
//
// A restart failure leaves the new file in place; the operator retries with
// apply or restores a backup.
package haproxy
