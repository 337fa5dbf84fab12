package knowledge

// FilterByTaxonomy returns the records matching every non-nil field of tax.
// A nil filter field is a wildcard; a nil record field applies broadly and
// matches any filter value. Input order is preserved.
func FilterByTaxonomy(records []FailureModeRecord, tax Taxonomy) []FailureModeRecord {
	out := make([]FailureModeRecord, 0, len(records))
	for _, r := range records {
		if !idMatches(tax.GroupID, r.EquipmentGroupID) ||
			!idMatches(tax.TypeID, r.EquipmentTypeID) ||
			!idMatches(tax.SubtypeID, r.EquipmentSubtypeID) ||
			!idMatches(tax.RiskRankingID, r.RiskRankingID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func idMatches(filter, record *int64) bool {
	if filter == nil || record == nil {
		return true
	}
	return *filter == *record
}
