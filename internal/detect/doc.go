// Package detect finds regulators, licensed legal entities, compensation
// schemes and negative balance protection in the aggregate text of a crawl.
//
// Detection is heuristic. Regulators are matched by abbreviation or alias as
// whole words, then by folded full name. Entity names ending in a legal
// suffix (Ltd, GmbH, S.A., ...) are paired with the nearest regulator mention
// inside a bounded window that also contains a licensing verb. A regulator
// that no entity could be paired with yields one entity with an empty name;
// entities and regulators are never paired by position in their lists.
//
// Compensation and negative balance protection apply to every entity of the
// corpus alike.
package detect
