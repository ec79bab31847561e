package enums

// SignalKind classifies a relevance signal raised by the market engine.
type SignalKind string

const (
	SignalOffer    SignalKind = "offer"
	SignalLead     SignalKind = "lead"
	SignalOrder    SignalKind = "order"
	SignalJob      SignalKind = "job"
	SignalLostSale SignalKind = "lost_sale"
)

var validSignalKinds = []SignalKind{
	SignalOffer,
	SignalLead,
	SignalOrder,
	SignalJob,
	SignalLostSale,
}

// IsValid reports whether the kind is known.
func (k SignalKind) IsValid() bool {
	for _, candidate := range validSignalKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// PipelineStage is the admin funnel classification of a product request.
type PipelineStage string

const (
	StageDrafting       PipelineStage = "drafting"
	StageAwaitingQuotes PipelineStage = "awaiting_quotes"
	StageQuoted         PipelineStage = "quoted"
	StageOrdered        PipelineStage = "ordered"
	StageInDelivery     PipelineStage = "in_delivery"
	StageDelivered      PipelineStage = "delivered"
	StageCancelled      PipelineStage = "cancelled"
)
