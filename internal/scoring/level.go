package scoring

// levelFloors holds the inclusive lower bound of levels 1 through 5.
var levelFloors = [...]int{0, 100, 300, 600, 1000}

// pointsPerLevelAfterFive is the width of every level above 5.
const pointsPerLevelAfterFive = 500

// CalculateLevel maps a cumulative point total to a level >= 1.
// It must be called with the total after the new points were added.
func CalculateLevel(totalPoints int) int {
	last := len(levelFloors) - 1
	if totalPoints >= levelFloors[last] {
		return last + 1 + (totalPoints-levelFloors[last])/pointsPerLevelAfterFive
	}
	level := 1
	for i := 1; i < last; i++ {
		if totalPoints >= levelFloors[i] {
			level = i + 1
		}
	}
	return level
}
