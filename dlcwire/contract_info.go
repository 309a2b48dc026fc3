package dlcwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/dlcproto/dlcd/oracle"
	"github.com/dlcproto/dlcd/payout"
	"github.com/lightningnetwork/lnd/tlv"
)

// Type tags of the tagged unions inside a contract info.
const (
	contractInfoSingle   uint8 = 0
	contractInfoDisjoint uint8 = 1

	descriptorEnumerated uint8 = 0
	descriptorNumeric    uint8 = 1

	oracleInfoSingle uint8 = 0
	oracleInfoMulti  uint8 = 1

	eventEnum  uint8 = 0
	eventDigit uint8 = 1
)

var (
	// ErrNoContracts is returned for a contract info without any
	// descriptor and oracle pair.
	ErrNoContracts = errors.New("contract info has no contracts")

	// ErrNoAnnouncements is returned for oracle info without
	// announcements.
	ErrNoAnnouncements = errors.New("oracle info has no announcements")
)

// ContractInfo is the payout structure of a contract: its total collateral
// and one or more descriptor and oracle pairs. With several pairs the
// contract settles on whichever event is attested, and the CETs of every
// pair are laid out one after the other.
type ContractInfo struct {
	TotalCollateral btcutil.Amount
	Contracts       []ContractOracle
}

// ContractOracle pairs the payouts of a contract with the oracles attesting
// to its outcome.
type ContractOracle struct {
	Descriptor ContractDescriptor
	OracleInfo OracleInfo
}

// ContractDescriptor maps outcomes to payouts. The set of implementations is
// closed: *EnumeratedDescriptor and *NumericDescriptor.
type ContractDescriptor interface {
	isContractDescriptor()
}

// EnumOutcome is a single outcome of an enumerated contract with the payout
// of the offering party.
type EnumOutcome struct {
	Outcome     string
	OfferPayout btcutil.Amount
}

// EnumeratedDescriptor lists every outcome of the event with its payout.
type EnumeratedDescriptor struct {
	Outcomes []EnumOutcome
}

func (e *EnumeratedDescriptor) isContractDescriptor() {}

// OutcomeStrings returns the outcomes in descriptor order.
func (e *EnumeratedDescriptor) OutcomeStrings() []string {
	out := make([]string, len(e.Outcomes))
	for i, o := range e.Outcomes {
		out[i] = o.Outcome
	}

	return out
}

// NumericDescriptor describes payouts over a numeric outcome with a payout
// function and rounding intervals. The base comes from the oracle event.
type NumericDescriptor struct {
	NumDigits uint16
	Function  payout.Function
	Rounding  payout.RoundingIntervals
}

func (n *NumericDescriptor) isContractDescriptor() {}

// A compile time check to ensure both descriptors implement the interface.
var (
	_ ContractDescriptor = (*EnumeratedDescriptor)(nil)
	_ ContractDescriptor = (*NumericDescriptor)(nil)
)

// OracleInfo describes the oracles of a contract. The set of implementations
// is closed: *SingleOracleInfo and *MultiOracleInfo.
type OracleInfo interface {
	// FirstAnnouncement returns the announcement messages and adaptor
	// points are derived from.
	FirstAnnouncement() *oracle.Announcement

	// Announcements returns every announcement.
	Announcements() []*oracle.Announcement
}

// SingleOracleInfo is a contract attested by one oracle.
type SingleOracleInfo struct {
	Announcement *oracle.Announcement
}

// FirstAnnouncement returns the only announcement.
func (s *SingleOracleInfo) FirstAnnouncement() *oracle.Announcement {
	return s.Announcement
}

// Announcements returns the only announcement.
func (s *SingleOracleInfo) Announcements() []*oracle.Announcement {
	return []*oracle.Announcement{s.Announcement}
}

// MultiOracleInfo is a contract attested by a threshold of several oracles.
type MultiOracleInfo struct {
	Threshold uint16
	Anns      []*oracle.Announcement
}

// FirstAnnouncement returns the first announcement. Messages of multi
// oracle contracts are only derived from it.
func (m *MultiOracleInfo) FirstAnnouncement() *oracle.Announcement {
	if len(m.Anns) == 0 {
		return nil
	}

	return m.Anns[0]
}

// Announcements returns every announcement.
func (m *MultiOracleInfo) Announcements() []*oracle.Announcement {
	return m.Anns
}

// A compile time check to ensure both oracle infos implement the interface.
var (
	_ OracleInfo = (*SingleOracleInfo)(nil)
	_ OracleInfo = (*MultiOracleInfo)(nil)
)

// Validate checks the contract info is internally consistent: every pair has
// a valid announcement whose event matches the descriptor, and numeric
// payout functions cover the whole outcome domain.
func (c *ContractInfo) Validate() error {
	if len(c.Contracts) == 0 {
		return ErrNoContracts
	}
	if c.TotalCollateral <= 0 {
		return errors.New("total collateral must be positive")
	}

	for i, co := range c.Contracts {
		if err := co.validate(c.TotalCollateral); err != nil {
			return fmt.Errorf("contract %d: %w", i, err)
		}
	}

	return nil
}

// validate checks a single descriptor and oracle pair.
func (co *ContractOracle) validate(total btcutil.Amount) error {
	if co.OracleInfo == nil {
		return ErrNoAnnouncements
	}
	anns := co.OracleInfo.Announcements()
	if len(anns) == 0 || anns[0] == nil {
		return ErrNoAnnouncements
	}
	if m, ok := co.OracleInfo.(*MultiOracleInfo); ok {
		if m.Threshold == 0 || int(m.Threshold) > len(m.Anns) {
			return fmt.Errorf("threshold %d of %d oracles",
				m.Threshold, len(m.Anns))
		}
	}
	for _, ann := range anns {
		if err := ann.Validate(); err != nil {
			return err
		}
	}

	ann := co.OracleInfo.FirstAnnouncement()
	switch d := co.Descriptor.(type) {
	case *EnumeratedDescriptor:
		event, ok := ann.Event.(*oracle.EnumEvent)
		if !ok {
			return fmt.Errorf("enumerated descriptor with %T event",
				ann.Event)
		}
		if len(d.Outcomes) == 0 {
			return oracle.ErrNoOutcomes
		}

		known := make(map[string]struct{}, len(event.Outcomes))
		for _, o := range event.Outcomes {
			known[o] = struct{}{}
		}
		seen := make(map[string]struct{}, len(d.Outcomes))
		for _, o := range d.Outcomes {
			if _, ok := known[o.Outcome]; !ok {
				return fmt.Errorf("outcome %q not in event",
					o.Outcome)
			}
			if _, ok := seen[o.Outcome]; ok {
				return fmt.Errorf("duplicate outcome %q",
					o.Outcome)
			}
			seen[o.Outcome] = struct{}{}

			if o.OfferPayout < 0 || o.OfferPayout > total {
				return fmt.Errorf("payout %v for %q outside "+
					"[0, %v]", o.OfferPayout, o.Outcome,
					total)
			}
		}

	case *NumericDescriptor:
		event, ok := ann.Event.(*oracle.DigitEvent)
		if !ok {
			return fmt.Errorf("numeric descriptor with %T event",
				ann.Event)
		}
		if event.NumDigits != d.NumDigits {
			return fmt.Errorf("descriptor has %d digits, event %d",
				d.NumDigits, event.NumDigits)
		}

		params := d.GroupParams(event.Base, total)
		if err := params.Validate(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown contract descriptor %T",
			co.Descriptor)
	}

	return nil
}

// GroupParams returns the payout group parameters of the descriptor for the
// given oracle base and total collateral.
func (n *NumericDescriptor) GroupParams(base uint64,
	total btcutil.Amount) *payout.GroupParams {

	return &payout.GroupParams{
		Function:        &n.Function,
		Rounding:        n.Rounding,
		TotalCollateral: uint64(total),
		Base:            base,
		NumDigits:       int(n.NumDigits),
	}
}

// Encode serializes the contract info into the buffer.
func (c *ContractInfo) Encode(w *bytes.Buffer) error {
	switch len(c.Contracts) {
	case 0:
		return ErrNoContracts

	case 1:
		if err := WriteUint8(w, contractInfoSingle); err != nil {
			return err
		}
		if err := WriteSatoshi(w, c.TotalCollateral); err != nil {
			return err
		}

		return c.Contracts[0].encode(w)
	}

	if err := WriteUint8(w, contractInfoDisjoint); err != nil {
		return err
	}
	if err := WriteSatoshi(w, c.TotalCollateral); err != nil {
		return err
	}
	if err := WriteBigSize(w, uint64(len(c.Contracts))); err != nil {
		return err
	}
	for i := range c.Contracts {
		if err := c.Contracts[i].encode(w); err != nil {
			return err
		}
	}

	return nil
}

// Decode deserializes a contract info from the reader.
func (c *ContractInfo) Decode(r io.Reader) error {
	var typ uint8
	if err := ReadElements(r, &typ, &c.TotalCollateral); err != nil {
		return err
	}

	var n uint64 = 1
	switch typ {
	case contractInfoSingle:

	case contractInfoDisjoint:
		var err error
		n, err = ReadBigSize(r, math.MaxUint16)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown contract info type %d", typ)
	}

	c.Contracts = make([]ContractOracle, n)
	for i := range c.Contracts {
		if err := c.Contracts[i].decode(r); err != nil {
			return fmt.Errorf("contract %d: %w", i, err)
		}
	}

	return nil
}

func (co *ContractOracle) encode(w *bytes.Buffer) error {
	if err := encodeDescriptor(w, co.Descriptor); err != nil {
		return err
	}

	return encodeOracleInfo(w, co.OracleInfo)
}

func (co *ContractOracle) decode(r io.Reader) error {
	var err error
	co.Descriptor, err = decodeDescriptor(r)
	if err != nil {
		return err
	}
	co.OracleInfo, err = decodeOracleInfo(r)

	return err
}

func encodeDescriptor(w *bytes.Buffer, desc ContractDescriptor) error {
	switch d := desc.(type) {
	case *EnumeratedDescriptor:
		if err := WriteUint8(w, descriptorEnumerated); err != nil {
			return err
		}
		err := WriteBigSize(w, uint64(len(d.Outcomes)))
		if err != nil {
			return err
		}
		for _, o := range d.Outcomes {
			if err := WriteString(w, o.Outcome); err != nil {
				return err
			}
			if err := WriteSatoshi(w, o.OfferPayout); err != nil {
				return err
			}
		}

		return nil

	case *NumericDescriptor:
		if err := WriteUint8(w, descriptorNumeric); err != nil {
			return err
		}
		if err := WriteUint16(w, d.NumDigits); err != nil {
			return err
		}
		if err := encodeFunction(w, &d.Function); err != nil {
			return err
		}

		return encodeRounding(w, d.Rounding)

	default:
		return fmt.Errorf("unknown contract descriptor %T", desc)
	}
}

func decodeDescriptor(r io.Reader) (ContractDescriptor, error) {
	var typ uint8
	if err := ReadElement(r, &typ); err != nil {
		return nil, err
	}

	switch typ {
	case descriptorEnumerated:
		n, err := ReadBigSize(r, MaxMsgBody)
		if err != nil {
			return nil, err
		}

		d := &EnumeratedDescriptor{
			Outcomes: make([]EnumOutcome, 0, min(n, 1024)),
		}
		for i := uint64(0); i < n; i++ {
			var o EnumOutcome
			err := ReadElements(r, &o.Outcome, &o.OfferPayout)
			if err != nil {
				return nil, err
			}
			d.Outcomes = append(d.Outcomes, o)
		}

		return d, nil

	case descriptorNumeric:
		d := &NumericDescriptor{}
		if err := ReadElement(r, &d.NumDigits); err != nil {
			return nil, err
		}
		if err := decodeFunction(r, &d.Function); err != nil {
			return nil, err
		}
		rounding, err := decodeRounding(r)
		if err != nil {
			return nil, err
		}
		d.Rounding = rounding

		return d, nil

	default:
		return nil, fmt.Errorf("unknown contract descriptor type %d",
			typ)
	}
}

func encodeDecimal(w *bytes.Buffer, d payout.Decimal) error {
	if err := WriteBool(w, d.Negative); err != nil {
		return err
	}
	if err := WriteUint64(w, d.Integer); err != nil {
		return err
	}

	return WriteUint16(w, d.ExtraPrecision)
}

func decodeDecimal(r io.Reader, d *payout.Decimal) error {
	return ReadElements(r, &d.Negative, &d.Integer, &d.ExtraPrecision)
}

func encodeFunction(w *bytes.Buffer, f *payout.Function) error {
	if err := WriteBigSize(w, uint64(len(f.Pieces))); err != nil {
		return err
	}

	for _, piece := range f.Pieces {
		if err := WriteUint64(w, piece.EndOutcome); err != nil {
			return err
		}

		switch c := piece.Curve.(type) {
		case *payout.Polynomial:
			err := WriteUint8(w, uint8(payout.PolynomialCurve))
			if err != nil {
				return err
			}
			err = WriteBigSize(w, uint64(len(c.Points)))
			if err != nil {
				return err
			}
			for _, p := range c.Points {
				if err := WriteUint64(w, p.Outcome); err != nil {
					return err
				}
				if err := WriteUint64(w, p.Payout); err != nil {
					return err
				}
				err := WriteUint16(w, p.ExtraPrecision)
				if err != nil {
					return err
				}
			}

		case *payout.Hyperbola:
			err := WriteUint8(w, uint8(payout.HyperbolaCurve))
			if err != nil {
				return err
			}
			if err := WriteBool(w, c.UsePositivePiece); err != nil {
				return err
			}
			for _, d := range []payout.Decimal{
				c.TranslateOutcome, c.TranslatePayout,
				c.A, c.B, c.C, c.D,
			} {
				if err := encodeDecimal(w, d); err != nil {
					return err
				}
			}

		default:
			return fmt.Errorf("unknown curve %T", piece.Curve)
		}
	}

	return nil
}

func decodeFunction(r io.Reader, f *payout.Function) error {
	n, err := ReadBigSize(r, math.MaxUint16)
	if err != nil {
		return err
	}

	f.Pieces = make([]payout.Piece, n)
	for i := range f.Pieces {
		var curveType uint8
		err := ReadElements(r, &f.Pieces[i].EndOutcome, &curveType)
		if err != nil {
			return err
		}

		switch payout.CurveType(curveType) {
		case payout.PolynomialCurve:
			numPoints, err := ReadBigSize(r, math.MaxUint16)
			if err != nil {
				return err
			}

			poly := &payout.Polynomial{
				Points: make([]payout.Point, numPoints),
			}
			for j := range poly.Points {
				p := &poly.Points[j]
				err := ReadElements(
					r, &p.Outcome, &p.Payout,
					&p.ExtraPrecision,
				)
				if err != nil {
					return err
				}
			}
			f.Pieces[i].Curve = poly

		case payout.HyperbolaCurve:
			h := &payout.Hyperbola{}
			if err := ReadElement(r, &h.UsePositivePiece); err != nil {
				return err
			}
			for _, d := range []*payout.Decimal{
				&h.TranslateOutcome, &h.TranslatePayout,
				&h.A, &h.B, &h.C, &h.D,
			} {
				if err := decodeDecimal(r, d); err != nil {
					return err
				}
			}
			f.Pieces[i].Curve = h

		default:
			return fmt.Errorf("unknown curve type %d", curveType)
		}
	}

	return nil
}

func encodeRounding(w *bytes.Buffer, rounding payout.RoundingIntervals) error {
	err := WriteBigSize(w, uint64(len(rounding.Intervals)))
	if err != nil {
		return err
	}
	for _, iv := range rounding.Intervals {
		if err := WriteUint64(w, iv.BeginInterval); err != nil {
			return err
		}
		if err := WriteUint64(w, iv.RoundingMod); err != nil {
			return err
		}
	}

	return nil
}

func decodeRounding(r io.Reader) (payout.RoundingIntervals, error) {
	var rounding payout.RoundingIntervals

	n, err := ReadBigSize(r, math.MaxUint16)
	if err != nil {
		return rounding, err
	}

	rounding.Intervals = make([]payout.RoundingInterval, n)
	for i := range rounding.Intervals {
		iv := &rounding.Intervals[i]
		err := ReadElements(r, &iv.BeginInterval, &iv.RoundingMod)
		if err != nil {
			return rounding, err
		}
	}

	return rounding, nil
}

func encodeOracleInfo(w *bytes.Buffer, info OracleInfo) error {
	switch o := info.(type) {
	case *SingleOracleInfo:
		if err := WriteUint8(w, oracleInfoSingle); err != nil {
			return err
		}

		return EncodeAnnouncement(w, o.Announcement)

	case *MultiOracleInfo:
		if err := WriteUint8(w, oracleInfoMulti); err != nil {
			return err
		}
		if err := WriteUint16(w, o.Threshold); err != nil {
			return err
		}
		if err := WriteBigSize(w, uint64(len(o.Anns))); err != nil {
			return err
		}
		for _, ann := range o.Anns {
			if err := EncodeAnnouncement(w, ann); err != nil {
				return err
			}
		}

		return nil

	default:
		return fmt.Errorf("unknown oracle info %T", info)
	}
}

func decodeOracleInfo(r io.Reader) (OracleInfo, error) {
	var typ uint8
	if err := ReadElement(r, &typ); err != nil {
		return nil, err
	}

	switch typ {
	case oracleInfoSingle:
		ann, err := DecodeAnnouncement(r)
		if err != nil {
			return nil, err
		}

		return &SingleOracleInfo{Announcement: ann}, nil

	case oracleInfoMulti:
		m := &MultiOracleInfo{}
		if err := ReadElement(r, &m.Threshold); err != nil {
			return nil, err
		}
		n, err := ReadBigSize(r, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		m.Anns = make([]*oracle.Announcement, n)
		for i := range m.Anns {
			m.Anns[i], err = DecodeAnnouncement(r)
			if err != nil {
				return nil, err
			}
		}

		return m, nil

	default:
		return nil, fmt.Errorf("unknown oracle info type %d", typ)
	}
}

// EncodeAnnouncement writes an oracle announcement: x-only oracle key,
// maturity, event id, event descriptor and x-only nonces.
func EncodeAnnouncement(w *bytes.Buffer, ann *oracle.Announcement) error {
	if ann == nil || ann.OraclePubKey == nil {
		return errors.New("cannot write nil announcement")
	}

	err := WriteBytes(w, oracle.SerializeXOnly(ann.OraclePubKey))
	if err != nil {
		return err
	}
	if err := WriteUint32(w, ann.EventMaturity); err != nil {
		return err
	}
	if err := WriteString(w, ann.EventID); err != nil {
		return err
	}

	switch e := ann.Event.(type) {
	case *oracle.EnumEvent:
		if err := WriteUint8(w, eventEnum); err != nil {
			return err
		}
		if err := WriteBigSize(w, uint64(len(e.Outcomes))); err != nil {
			return err
		}
		for _, o := range e.Outcomes {
			if err := WriteString(w, o); err != nil {
				return err
			}
		}

	case *oracle.DigitEvent:
		if err := WriteUint8(w, eventDigit); err != nil {
			return err
		}
		if err := WriteBigSize(w, e.Base); err != nil {
			return err
		}
		if err := WriteBool(w, e.IsSigned); err != nil {
			return err
		}
		if err := WriteString(w, e.Unit); err != nil {
			return err
		}
		if err := WriteUint32(w, uint32(e.Precision)); err != nil {
			return err
		}
		if err := WriteUint16(w, e.NumDigits); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown event descriptor %T", ann.Event)
	}

	if len(ann.Nonces) > math.MaxUint16 {
		return ErrFieldTooLong("nonces", len(ann.Nonces))
	}
	if err := WriteUint16(w, uint16(len(ann.Nonces))); err != nil {
		return err
	}
	for _, nonce := range ann.Nonces {
		if nonce == nil {
			return ErrNilPublicKey
		}
		if err := WriteBytes(w, oracle.SerializeXOnly(nonce)); err != nil {
			return err
		}
	}

	return nil
}

// readXOnly reads a 32 byte BIP-340 public key.
func readXOnly(r io.Reader) (*btcec.PublicKey, error) {
	var b [32]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}

	return oracle.ParseXOnly(b[:])
}

// DecodeAnnouncement reads an oracle announcement written by
// EncodeAnnouncement.
func DecodeAnnouncement(r io.Reader) (*oracle.Announcement, error) {
	ann := &oracle.Announcement{}

	var err error
	ann.OraclePubKey, err = readXOnly(r)
	if err != nil {
		return nil, fmt.Errorf("oracle key: %w", err)
	}

	var typ uint8
	err = ReadElements(r, &ann.EventMaturity, &ann.EventID, &typ)
	if err != nil {
		return nil, err
	}

	switch typ {
	case eventEnum:
		n, err := ReadBigSize(r, math.MaxUint16)
		if err != nil {
			return nil, err
		}

		e := &oracle.EnumEvent{Outcomes: make([]string, n)}
		for i := range e.Outcomes {
			if err := ReadElement(r, &e.Outcomes[i]); err != nil {
				return nil, err
			}
		}
		ann.Event = e

	case eventDigit:
		e := &oracle.DigitEvent{}

		var scratch [8]byte
		e.Base, err = tlv.ReadVarInt(r, &scratch)
		if err != nil {
			return nil, err
		}

		var precision uint32
		err := ReadElements(
			r, &e.IsSigned, &e.Unit, &precision, &e.NumDigits,
		)
		if err != nil {
			return nil, err
		}
		e.Precision = int32(precision)
		ann.Event = e

	default:
		return nil, fmt.Errorf("unknown event descriptor type %d", typ)
	}

	var numNonces uint16
	if err := ReadElement(r, &numNonces); err != nil {
		return nil, err
	}
	ann.Nonces = make([]*btcec.PublicKey, numNonces)
	for i := range ann.Nonces {
		ann.Nonces[i], err = readXOnly(r)
		if err != nil {
			return nil, fmt.Errorf("nonce %d: %w", i, err)
		}
	}

	return ann, nil
}
