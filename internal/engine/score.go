package engine

// SecurityScore — взвешенно-штрафная модель здоровья системы в [0, 100].
// Кепы по категориям принципиальны: одна шумная категория не должна
// утащить весь балл в ноль, а активные тяжелые инциденты штрафуются без кепа.
func SecurityScore(authFailures, rateViolations, csrfFailures, validationErrors, activeEmergency, activeCritical int) float64 {
	score := 100.0

	score -= capAt(float64(authFailures)*2, 20)
	score -= capAt(float64(rateViolations)*1, 15)
	score -= capAt(float64(csrfFailures)*3, 25)
	score -= capAt(float64(validationErrors)*0.5, 10)

	score -= float64(activeEmergency) * 15
	score -= float64(activeCritical) * 10

	if score < 0 {
		return 0
	}
	return score
}

func capAt(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
