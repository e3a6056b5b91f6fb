// Package idassign allocates document and change ids for one
// (account, collection) pair and reuses ids freed by the tombstone
// sweeper before minting new ones.
package idassign
