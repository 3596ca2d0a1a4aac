package events

import (
	"bytes"
	"math/big"
	"testing"

	"tranchefi/crypto"
)

func TestFundInvestedEvent(t *testing.T) {
	investor := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x01}, 20))
	evt := FundInvested{
		Investor:     investor,
		Amount:       big.NewInt(100),
		Senior:       big.NewInt(82),
		Subordinated: big.NewInt(15),
		Reserve:      big.NewInt(3),
	}.Event()
	if evt.Type != TypeFundInvested {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["investor"] != investor.String() {
		t.Fatalf("unexpected investor attr: %s", evt.Attributes["investor"])
	}
	if evt.Attributes["senior"] != "82" || evt.Attributes["subordinated"] != "15" || evt.Attributes["reserve"] != "3" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestCreditPaidOffEventNilAmount(t *testing.T) {
	evt := CreditPaidOff{MonthsElapsed: 3}.Event()
	if evt.Attributes["amountDue"] != "0" {
		t.Fatalf("expected nil amount to render as 0, got %s", evt.Attributes["amountDue"])
	}
	if evt.Attributes["monthsElapsed"] != "3" {
		t.Fatalf("unexpected months: %s", evt.Attributes["monthsElapsed"])
	}
	if evt.Attributes["borrower"] != "" {
		t.Fatalf("expected empty borrower, got %s", evt.Attributes["borrower"])
	}
}

type untypedEvent struct{}

func (untypedEvent) EventType() string { return "untyped" }

func TestBufferDrainAndRender(t *testing.T) {
	var buf Buffer
	buf.Emit(FundDonated{Amount: big.NewInt(5)})
	buf.Emit(untypedEvent{})
	buf.Emit(nil)

	drained := buf.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(drained))
	}
	if again := buf.Drain(); len(again) != 0 {
		t.Fatalf("expected buffer to be empty after drain, got %d", len(again))
	}
	rendered := Render(drained)
	if len(rendered) != 1 || rendered[0].Type != TypeFundDonated {
		t.Fatalf("unexpected rendered events: %+v", rendered)
	}
}
