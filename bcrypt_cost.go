//go:build !race

package edutrack

func passwordHashCost() int {
	return 14
}
