package buffer

// GetIVBucket maps a raw IV percentage onto the coarse bucket set the
// aggregate fact tables key on: {0,25,50,75,90,95,100}. Stepwise floor onto
// the boundaries fixed by the worked examples: [0,25)->0, [25,50)->25,
// [50,75)->50, [75,90)->75, [90,95)->90, [95,100)->95, 100->100.
func GetIVBucket(iv int) int {
	switch {
	case iv >= 100:
		return 100
	case iv >= 95:
		return 95
	case iv >= 90:
		return 90
	case iv >= 75:
		return 75
	case iv >= 50:
		return 50
	case iv >= 25:
		return 25
	default:
		return 0
	}
}
