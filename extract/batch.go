package extract

// BatchPlan is one contiguous slice of the applicant list, processed
// together before a cooldown pause. Ephemeral; never persisted.
type BatchPlan struct {
	BatchIndex   int
	TotalBatches int
	Items        []ApplicantRef
}

// PlanBatches slices refs into batches of batchSize, capped at maxItems.
// The final batch is shorter when the cap or source length is not a batch
// multiple; it is never padded. Returns nil when there is nothing to do.
func PlanBatches(refs []ApplicantRef, batchSize, maxItems int) []BatchPlan {
	total := len(refs)
	if maxItems < total {
		total = maxItems
	}
	if total <= 0 || batchSize < 1 {
		return nil
	}

	totalBatches := (total + batchSize - 1) / batchSize
	plans := make([]BatchPlan, 0, totalBatches)
	for i := 0; i < totalBatches; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > total {
			end = total
		}
		plans = append(plans, BatchPlan{
			BatchIndex:   i,
			TotalBatches: totalBatches,
			Items:        refs[start:end],
		})
	}
	return plans
}
