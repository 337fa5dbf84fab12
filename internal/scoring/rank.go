package scoring

import "math"

// RankDecay is the weight ratio between consecutive ranks.
const RankDecay = 0.8

// RankWeightedMean averages confidences in the given order with weight
// RankDecay^rank and rounds the result. No confidences gives 0.
func RankWeightedMean(confidences []int) int {
	if len(confidences) == 0 {
		return 0
	}
	var sum, total float64
	weight := 1.0
	for _, c := range confidences {
		sum += float64(c) * weight
		total += weight
		weight *= RankDecay
	}
	return int(math.Round(sum / total))
}
