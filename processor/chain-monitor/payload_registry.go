package chainmonitor

import "github.com/c360studio/semstreams/component"

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "governance",
		Category:    "proposal",
		Version:     "v1",
		Description: "Governance proposal observed on-chain for the first time",
		Factory:     func() any { return &ProposalEvent{} },
	}); err != nil {
		panic("failed to register ProposalEvent: " + err.Error())
	}

	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "governance",
		Category:    "decision",
		Version:     "v1",
		Description: "Automation decision recorded for a governance proposal",
		Factory:     func() any { return &DecisionEvent{} },
	}); err != nil {
		panic("failed to register DecisionEvent: " + err.Error())
	}
}
