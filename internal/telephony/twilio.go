package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioAPI is the subset of the Twilio REST client this adapter needs.
// Narrowed to an interface so tests can substitute a fake.
type TwilioAPI interface {
	CreateCall(params *twilioapi.CreateCallParams) (*twilioapi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioapi.UpdateCallParams) (*twilioapi.ApiV2010Call, error)
}

// TwilioConfig carries the account identity for outbound calls.
type TwilioConfig struct {
	FromNumber string
}

// TwilioProvider implements Provider against the Twilio voice API.
type TwilioProvider struct {
	api TwilioAPI
	cfg TwilioConfig
}

// NewTwilioProvider wraps an existing API client (or fake).
func NewTwilioProvider(api TwilioAPI, cfg TwilioConfig) *TwilioProvider {
	return &TwilioProvider{api: api, cfg: cfg}
}

// NewTwilioProviderFromCredentials builds the real REST client.
func NewTwilioProviderFromCredentials(accountSID, authToken string, cfg TwilioConfig) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{api: client.Api, cfg: cfg}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) CreateCall(ctx context.Context, req CreateCallRequest) (string, error) {
	if req.To == "" || req.InstructionURL == "" {
		return "", errors.New("telephony: to and instruction url required")
	}

	params := &twilioapi.CreateCallParams{}
	params.SetFrom(p.cfg.FromNumber)
	params.SetTo(req.To)
	params.SetUrl(req.InstructionURL)
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	if req.MachineDetection {
		params.SetMachineDetection("Enable")
		params.SetAsyncAmd("true")
		if req.AMDCallbackURL != "" {
			params.SetAsyncAmdStatusCallback(req.AMDCallbackURL)
		}
	}

	call, err := p.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return "", errors.New("telephony: provider returned no call sid")
	}
	return *call.Sid, nil
}

func (p *TwilioProvider) JoinConference(ctx context.Context, callID string, req JoinConferenceRequest) error {
	twiml, err := ConferenceTwiML(req)
	if err != nil {
		return err
	}
	return p.update(callID, twiml)
}

func (p *TwilioProvider) RedirectToStream(ctx context.Context, callID string, req RedirectToStreamRequest) error {
	twiml, err := StreamTwiML(req)
	if err != nil {
		return err
	}
	return p.update(callID, twiml)
}

func (p *TwilioProvider) SayThenHangup(ctx context.Context, callID string, message string) error {
	twiml, err := SayHangupTwiML(message)
	if err != nil {
		return err
	}
	return p.update(callID, twiml)
}

func (p *TwilioProvider) Hangup(ctx context.Context, callID string) error {
	twiml, err := HangupTwiML()
	if err != nil {
		return err
	}
	return p.update(callID, twiml)
}

func (p *TwilioProvider) update(callID, twiml string) error {
	if callID == "" {
		return errors.New("telephony: call id required")
	}
	params := &twilioapi.UpdateCallParams{}
	params.SetTwiml(twiml)
	if _, err := p.api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("telephony: update call %s: %w", callID, err)
	}
	return nil
}
