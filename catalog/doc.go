// Package catalog maps sprite collection directories into typed asset
// records.
//
// Collection files follow the NNN-direction-variant[-gender].ext naming
// convention. The resolver is deliberately tolerant: casing, doubled
// extensions and stray trailing separators still parse, but any deviation
// from the canonical spelling is surfaced as a rename proposal instead of
// being silently accepted. The scan itself never touches the disk beyond
// reading; repairs are applied later by the reconcile package.
package catalog
