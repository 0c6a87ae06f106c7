package engine

import (
	"errors"
)

// Error taxonomy. Every rejected action returns one of these, possibly
// wrapped with context, and leaves state unchanged.
var (
	ErrUnauthorized            = errors.New("engine: unauthorized")
	ErrAlreadyExists           = errors.New("engine: already exists")
	ErrNotFound                = errors.New("engine: not found")
	ErrInsufficientBalance     = errors.New("engine: insufficient balance")
	ErrInsufficientLevel       = errors.New("engine: insufficient level")
	ErrInvalidFee              = errors.New("engine: fee percent must be between 0 and 100")
	ErrDuplicatePrediction     = errors.New("engine: prediction already submitted for this period")
	ErrCooldownActive          = errors.New("engine: daily reward cooldown active")
	ErrMarketNotActive         = errors.New("engine: market is not active")
	ErrSlippageExceeded        = errors.New("engine: slippage bound exceeded")
	ErrGuildMembershipConflict = errors.New("engine: guild membership conflict")

	ErrInvalidInput          = errors.New("engine: invalid input")
	ErrInvalidAmount         = errors.New("engine: amount must be positive")
	ErrInvalidOutcome        = errors.New("engine: invalid outcome")
	ErrInvalidMarket         = errors.New("engine: invalid market parameters")
	ErrInsufficientShares    = errors.New("engine: insufficient shares")
	ErrInsufficientLiquidity = errors.New("engine: insufficient market liquidity")
	ErrPositionLimitExceeded = errors.New("engine: position limit exceeded")
	ErrNotGuildMember        = errors.New("engine: not a guild member")
	ErrVotingClosed          = errors.New("engine: oracle voting window is closed")
	ErrAlreadyVoted          = errors.New("engine: already voted")
	ErrNotEnoughVoters       = errors.New("engine: not enough oracle voters")
	ErrMarketOpen            = errors.New("engine: market has not closed yet")
	ErrMarketNotResolved     = errors.New("engine: market is not resolved")
	ErrNothingToClaim        = errors.New("engine: nothing to claim")
	ErrMarketHasPositions    = errors.New("engine: market has open positions")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrNotFound, "NotFound"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInsufficientLevel, "InsufficientLevel"},
	{ErrInvalidFee, "InvalidFee"},
	{ErrDuplicatePrediction, "DuplicatePrediction"},
	{ErrCooldownActive, "CooldownActive"},
	{ErrMarketNotActive, "MarketNotActive"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrGuildMembershipConflict, "GuildMembershipConflict"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidOutcome, "InvalidOutcome"},
	{ErrInvalidMarket, "InvalidMarket"},
	{ErrInsufficientShares, "InsufficientShares"},
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrPositionLimitExceeded, "PositionLimitExceeded"},
	{ErrNotGuildMember, "NotGuildMember"},
	{ErrVotingClosed, "VotingClosed"},
	{ErrAlreadyVoted, "AlreadyVoted"},
	{ErrNotEnoughVoters, "NotEnoughVoters"},
	{ErrMarketOpen, "MarketOpen"},
	{ErrMarketNotResolved, "MarketNotResolved"},
	{ErrNothingToClaim, "NothingToClaim"},
	{ErrMarketHasPositions, "MarketHasPositions"},
}

// Kind returns the taxonomy name of err, or "Internal" for errors outside
// the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
