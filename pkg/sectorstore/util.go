package sectorstore

func maxU64(vals ...uint64) uint64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}

	return m
}

func minU64(vals ...uint64) uint64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}

	return m
}
