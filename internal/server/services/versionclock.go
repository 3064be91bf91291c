package services

// NextVersion is the sync version of a row after an accepted write. Versions
// count writes per row: a fresh row starts at 1.
func NextVersion(current int64) int64 {
	if current <= 0 {
		return 1
	}
	return current + 1
}

// Watermark is the highest version among the previous watermark and the
// observed row versions. A pull that returns nothing keeps the watermark.
func Watermark(last int64, versions ...int64) int64 {
	w := last
	for _, v := range versions {
		if v > w {
			w = v
		}
	}
	return w
}
