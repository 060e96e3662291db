package conversation

// Observer receives conversation events. Implementations must not block the
// conversation for long; the orchestrator calls them inline.
type Observer interface {
	ConversationStarted(s SessionContext)
	UtteranceRecorded(s SessionContext, u Utterance)
	TurnStateChanged(s SessionContext, state TurnState)
	ListenCompleted(s SessionContext, d Decision)
	ConversationEnded(s SessionContext, reason EndReason)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) ConversationStarted(s SessionContext) {
	for _, obs := range o {
		obs.ConversationStarted(s)
	}
}

func (o Observers) UtteranceRecorded(s SessionContext, u Utterance) {
	for _, obs := range o {
		obs.UtteranceRecorded(s, u)
	}
}

func (o Observers) TurnStateChanged(s SessionContext, state TurnState) {
	for _, obs := range o {
		obs.TurnStateChanged(s, state)
	}
}

func (o Observers) ListenCompleted(s SessionContext, d Decision) {
	for _, obs := range o {
		obs.ListenCompleted(s, d)
	}
}

func (o Observers) ConversationEnded(s SessionContext, reason EndReason) {
	for _, obs := range o {
		obs.ConversationEnded(s, reason)
	}
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ConversationStarted(SessionContext) {}
func (NopObserver) UtteranceRecorded(SessionContext, Utterance) {}
func (NopObserver) TurnStateChanged(SessionContext, TurnState) {}
func (NopObserver) ListenCompleted(SessionContext, Decision) {}
func (NopObserver) ConversationEnded(SessionContext, EndReason) {}
