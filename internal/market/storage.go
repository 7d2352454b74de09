package market

// StorageContext compares working-gas storage with its five-year average.
type StorageContext struct {
	StorageBcf  float64 `json:"storage_bcf"`
	FiveYearBcf float64 `json:"five_year_bcf"`
	DiffBcf     float64 `json:"diff_bcf"`
	DiffPct     float64 `json:"diff_pct"`
	Stale       bool    `json:"stale"`
}

// NewStorageContext computes the surplus (positive) or deficit (negative).
// DiffPct is zero when the five-year average is unknown.
func NewStorageContext(storage, fiveYear float64) StorageContext {
	sc := StorageContext{
		StorageBcf:  storage,
		FiveYearBcf: fiveYear,
		DiffBcf:     storage - fiveYear,
		Stale:       true,
	}
	if fiveYear != 0 {
		sc.DiffPct = sc.DiffBcf / fiveYear * 100
	}
	return sc
}

// Deficit reports whether storage sits below the five-year average.
func (s StorageContext) Deficit() bool {
	return s.DiffBcf < 0
}
