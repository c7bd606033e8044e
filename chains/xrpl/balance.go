package xrpl

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Transaction metadata parsing: the validated meta's AffectedNodes carry the
// before/after ledger entries the transaction touched, which is the only
// authoritative source for the amounts actually moved.

type txMeta struct {
	TransactionResult string         `json:"TransactionResult"`
	AffectedNodes     []affectedNode `json:"AffectedNodes"`
}

type affectedNode struct {
	ModifiedNode *nodeDiff `json:"ModifiedNode,omitempty"`
	CreatedNode  *nodeDiff `json:"CreatedNode,omitempty"`
	DeletedNode  *nodeDiff `json:"DeletedNode,omitempty"`
}

type nodeDiff struct {
	LedgerEntryType string          `json:"LedgerEntryType"`
	FinalFields     json.RawMessage `json:"FinalFields"`
	PreviousFields  json.RawMessage `json:"PreviousFields"`
	NewFields       json.RawMessage `json:"NewFields"`
}

func parseMeta(raw json.RawMessage) txMeta {
	var meta txMeta
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		xrplLog.Warn().Err(err).Msg("Failed to parse transaction metadata")
	}
	return meta
}

// balanceField is the subset of AccountRoot and RippleState fields needed to
// diff balances. AccountRoot balances are XRP drop strings; RippleState
// balances are issued-currency objects.
type balanceField struct {
	Account string          `json:"Account"`
	Balance json.RawMessage `json:"Balance"`
}

type issuedBalance struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// balanceChanges diffs Final against Previous fields across the affected
// AccountRoot and RippleState nodes, keyed "account:currency".
func (m txMeta) balanceChanges() map[string]string {
	changes := map[string]string{}
	for _, node := range m.AffectedNodes {
		diff := node.ModifiedNode
		if diff == nil {
			diff = node.CreatedNode
		}
		if diff == nil || diff.PreviousFields == nil && diff.NewFields == nil {
			continue
		}
		if diff.LedgerEntryType != "AccountRoot" && diff.LedgerEntryType != "RippleState" {
			continue
		}

		final := diff.FinalFields
		if final == nil {
			final = diff.NewFields
		}
		previous := diff.PreviousFields

		var after, before balanceField
		if err := json.Unmarshal(final, &after); err != nil || after.Balance == nil {
			continue
		}
		if previous != nil {
			_ = json.Unmarshal(previous, &before)
		}

		key, delta, ok := balanceDelta(diff.LedgerEntryType, after, before)
		if ok {
			changes[key] = delta
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

func balanceDelta(entryType string, after, before balanceField) (string, string, bool) {
	if entryType == "AccountRoot" {
		var afterDrops, beforeDrops string
		if err := json.Unmarshal(after.Balance, &afterDrops); err != nil {
			return "", "", false
		}
		if before.Balance != nil {
			_ = json.Unmarshal(before.Balance, &beforeDrops)
		}
		a, err := decimal.NewFromString(afterDrops)
		if err != nil {
			return "", "", false
		}
		b := decimal.Zero
		if beforeDrops != "" {
			b, _ = decimal.NewFromString(beforeDrops)
		}
		delta := a.Sub(b).Div(dropsPerXRP)
		return after.Account + ":XRP", delta.String(), true
	}

	var afterBal, beforeBal issuedBalance
	if err := json.Unmarshal(after.Balance, &afterBal); err != nil {
		return "", "", false
	}
	if before.Balance != nil {
		_ = json.Unmarshal(before.Balance, &beforeBal)
	}
	a, err := decimal.NewFromString(afterBal.Value)
	if err != nil {
		return "", "", false
	}
	b := decimal.Zero
	if beforeBal.Value != "" {
		b, _ = decimal.NewFromString(beforeBal.Value)
	}
	// RippleState entries carry no Account field; the trust line itself is
	// the subject.
	owner := after.Account
	if owner == "" {
		owner = "trustline"
	}
	return owner + ":" + afterBal.Currency, a.Sub(b).String(), true
}
