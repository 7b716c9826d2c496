// Package regulator provides the catalog of financial regulators that the
// detector matches against crawled text.
//
// A Catalog is immutable once built. It is constructed explicitly and passed
// to the components that need it, so tests can substitute a small catalog:
//
//	cat := regulator.Default()
//	rec, ok := cat.Lookup("IIROC") // resolves to CIRO
//
// # Tiers
//
// Every record carries a tier:
//   - Tier-1: strongest oversight and investor protection (FCA, ASIC, BaFin, ...)
//   - Tier-2: solid but less demanding regimes (CySEC, FSCA, DFSA, ...)
//   - Tier-3: offshore or light-touch regimes (FSA Seychelles, FSC BVI, ...)
package regulator
