package pipeline

// interruptTimes returns the flash start times for pattern interrupts:
// every 3 seconds starting at t=2s, strictly inside the clip.
func interruptTimes(duration float64) []float64 {
	var times []float64
	for t := 2.0; t < duration; t += 3.0 {
		times = append(times, t)
	}
	return times
}
