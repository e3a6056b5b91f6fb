// Package domain defines the error taxonomy shared by every storage and
// replication component: the error kinds and propagation rules, plus the
// structured error type components attach a kind, operation and cause to.
//
// @req RQ-0104
// @design DS-0104
package domain
