package core

import (
	"FeeLedger/internal/event"
	"FeeLedger/internal/fee"
	"FeeLedger/internal/ledger"
	"FeeLedger/internal/token"
	"fmt"

	"github.com/holiman/uint256"
)

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*ledger.Receipt, error) {
	caller := evt.Caller()

	switch e := evt.(type) {
	case *event.Initialize:
		return c.handleInitialize(e)
	case *event.Mint:
		if err := requireAmount("units", e.Units); err != nil {
			return nil, err
		}
		return c.token.Mint(caller, e.To, e.Units)
	case *event.Burn:
		if err := requireAmount("units", e.Units); err != nil {
			return nil, err
		}
		return c.token.Burn(caller, e.Units)
	case *event.BurnFrom:
		if err := requireAmount("units", e.Units); err != nil {
			return nil, err
		}
		return c.token.BurnFrom(caller, e.Owner, e.Units)
	case *event.Transfer:
		if err := requireAmount("amount", e.Amount); err != nil {
			return nil, err
		}
		return c.token.Transfer(caller, e.To, e.Amount)
	case *event.TransferFrom:
		if err := requireAmount("amount", e.Amount); err != nil {
			return nil, err
		}
		return c.token.TransferFrom(caller, e.From, e.To, e.Amount)
	case *event.TransferBridge:
		if err := requireAmount("amount", e.Amount); err != nil {
			return nil, err
		}
		return c.token.TransferBridge(caller, e.To, e.Amount, e.Bridge)
	case *event.AllowanceChange:
		return c.handleAllowance(e)

	case *event.SetPaused:
		if e.Paused {
			return c.token.Pause(caller)
		}
		return c.token.Unpause(caller)
	case *event.SetBlacklisted:
		if e.Blacklisted {
			return c.token.Blacklist(caller, e.Account)
		}
		return c.token.Unblacklist(caller, e.Account)
	case *event.SetMinimumTransfer:
		if err := requireAmount("value", e.Value); err != nil {
			return nil, err
		}
		return c.token.SetMinimumTransfer(caller, e.Value)
	case *event.SetCollectorContract:
		return c.token.SetCollectorContract(caller, e.Collector)
	case *event.TransferOwnership:
		return c.token.TransferOwnership(caller, e.NewOwner)

	case *event.WhitelistChange:
		return c.handleWhitelist(e)
	case *event.CollectorChange:
		if c.collector == nil {
			return nil, errNoCollector
		}
		if e.Add {
			return c.collector.AddFeeWithCollector(caller, e.Collector, e.Weight)
		}
		return c.collector.DeleteFeeWithCollector(caller, e.Collector)
	case *event.SetFeeRatio:
		if c.collector == nil {
			return nil, errNoCollector
		}
		return c.collector.SetFeeRatio(caller, e.Numerator, e.Denominator)
	case *event.Withdraw:
		if c.collector == nil {
			return nil, errNoCollector
		}
		if e.All {
			return c.collector.WithdrawAll(caller)
		}
		return c.collector.Withdraw(caller)

	default:
		return nil, fmt.Errorf("unknown command type: %T", evt)
	}
}

func (c *DeterministicCore) handleInitialize(e *event.Initialize) (*ledger.Receipt, error) {
	err := c.token.Initialize(token.Metadata{
		Name:     e.Name,
		Symbol:   e.Symbol,
		Currency: e.Currency,
		Decimals: e.Decimals,
	})
	if err != nil {
		return nil, err
	}
	return &ledger.Receipt{}, nil
}

func (c *DeterministicCore) handleAllowance(e *event.AllowanceChange) (*ledger.Receipt, error) {
	if err := requireAmount("value", e.Value); err != nil {
		return nil, err
	}
	switch e.Kind {
	case event.EventTypeApprove:
		return c.token.Approve(e.Caller(), e.Spender, e.Value)
	case event.EventTypeIncreaseAllowance:
		return c.token.IncreaseAllowance(e.Caller(), e.Spender, e.Value)
	case event.EventTypeDecreaseAllowance:
		return c.token.DecreaseAllowance(e.Caller(), e.Spender, e.Value)
	default:
		return nil, fmt.Errorf("allowance change with type %s", e.Kind)
	}
}

func (c *DeterministicCore) handleWhitelist(e *event.WhitelistChange) (*ledger.Receipt, error) {
	if c.collector == nil {
		return nil, errNoCollector
	}
	dir, err := fee.ParseDirection(e.Direction)
	if err != nil {
		return nil, err
	}
	if e.Add {
		return c.collector.AddWhitelist(e.Caller(), e.Account, dir)
	}
	return c.collector.DeleteWhitelist(e.Caller(), e.Account, dir)
}

func requireAmount(field string, v *uint256.Int) error {
	if v == nil {
		return fmt.Errorf("missing %s", field)
	}
	return nil
}
