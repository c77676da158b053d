package indicator

// roc computes the Rate of Change(period): percentage change between the
// latest close and the close `period` bars back.
func roc(closes []float64, period int) (float64, bool) {
	if len(closes) <= period {
		return 0, false
	}
	past := closes[len(closes)-1-period]
	if past == 0 {
		return 0, false
	}
	latest := closes[len(closes)-1]
	return (latest - past) / past * 100.0, true
}

// momentum computes raw Momentum(period): the absolute change between the
// latest close and the close `period` bars back.
func momentum(closes []float64, period int) (float64, bool) {
	if len(closes) <= period {
		return 0, false
	}
	past := closes[len(closes)-1-period]
	latest := closes[len(closes)-1]
	return latest - past, true
}
