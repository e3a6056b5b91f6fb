// Package query evaluates filter trees and sort orders against the rows
// internal/core/store commits: Condition/DocumentSet leaves combined with
// And/Or/Not resolve to a document bitmap, Sort re-orders that bitmap by
// range-scanning one or more indexed fields, and Changes answers "what
// changed since ChangeId X" from the changelog as a Delta.
package query
