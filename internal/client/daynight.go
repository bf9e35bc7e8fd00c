package client

// DayNightRatio доля дневного света 0..1000 для времени суток 0..23999.
// Рассвет с 4500 до 5750, закат с 18250 до 19500, ночью остаётся 150.
func DayNightRatio(timeOfDay uint32) uint32 {
	t := timeOfDay % 24000
	switch {
	case t < 4500 || t >= 19500:
		return 150
	case t < 4750 || t >= 19250:
		return 250
	case t < 5000 || t >= 19000:
		return 350
	case t < 5250 || t >= 18750:
		return 500
	case t < 5500 || t >= 18500:
		return 675
	case t < 5750 || t >= 18250:
		return 875
	default:
		return 1000
	}
}
