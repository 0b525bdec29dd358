package seqio

// Complement table covering the IUPAC ambiguity codes, case-preserving.
// Anything unrecognized complements to 'N'.
var complementTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 'N'
	}
	pairs := []string{
		"AT", "GC", "at", "gc",
		"NN", "nn",
		"RY", "SS", "WW", "KM", "BV", "DH",
		"ry", "ss", "ww", "km", "bv", "dh",
		"..", "--", "??",
	}
	for _, p := range pairs {
		t[p[0]], t[p[1]] = p[1], p[0]
	}
	return t
}()

// ReverseComplement returns the reverse complement of seq.
func ReverseComplement(seq string) string {
	rc := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		rc[len(seq)-1-i] = complementTable[seq[i]]
	}
	return string(rc)
}
