// Package domain defines the shared list's entities and the item state
// machine that governs them.
package domain
