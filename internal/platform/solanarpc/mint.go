package solanarpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MintAccountSize is the length of an SPL token mint account. Token-2022
// mints carry extensions after these bytes.
const MintAccountSize = 82

// DecodeMint decodes the SPL mint layout: COption<Pubkey> mint authority,
// u64 supply, u8 decimals, bool initialized, COption<Pubkey> freeze
// authority.
func DecodeMint(data []byte) (MintInfo, error) {
	if len(data) < MintAccountSize {
		return MintInfo{}, fmt.Errorf("solanarpc: mint account is %d bytes, want %d", len(data), MintAccountSize)
	}
	dec := bin.NewBinDecoder(data[:MintAccountSize])

	var info MintInfo
	mintAuth, err := readOptionalKey(dec)
	if err != nil {
		return MintInfo{}, fmt.Errorf("solanarpc: mint authority: %w", err)
	}
	supply, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return MintInfo{}, fmt.Errorf("solanarpc: mint supply: %w", err)
	}
	decimals, err := dec.ReadUint8()
	if err != nil {
		return MintInfo{}, fmt.Errorf("solanarpc: mint decimals: %w", err)
	}
	initialized, err := dec.ReadBool()
	if err != nil {
		return MintInfo{}, fmt.Errorf("solanarpc: mint initialized: %w", err)
	}
	freezeAuth, err := readOptionalKey(dec)
	if err != nil {
		return MintInfo{}, fmt.Errorf("solanarpc: freeze authority: %w", err)
	}

	info.MintAuthority = mintAuth
	info.Supply = strconv.FormatUint(supply, 10)
	info.Decimals = int(decimals)
	info.IsInitialized = initialized
	info.FreezeAuthority = freezeAuth
	return info, nil
}

// readOptionalKey reads a COption<Pubkey>: a u32 tag followed by 32 bytes
// that are only meaningful when the tag is 1.
func readOptionalKey(dec *bin.Decoder) (*string, error) {
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		s := solana.PublicKeyFromBytes(raw).String()
		return &s, nil
	default:
		return nil, fmt.Errorf("invalid option tag %d", tag)
	}
}

// decodeAccountData handles both shapes getAccountInfo returns under
// jsonParsed: a parsed object, or a ["<base64>", "base64"] pair when the
// node has no parser for the account.
func decodeAccountData(mint string, raw json.RawMessage) (MintInfo, error) {
	if len(raw) > 0 && raw[0] == '[' {
		var pair []string
		if err := json.Unmarshal(raw, &pair); err != nil {
			return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: %w", mint, err)
		}
		if len(pair) != 2 || pair[1] != "base64" {
			return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: unsupported encoding %v", mint, pair)
		}
		data, err := base64.StdEncoding.DecodeString(pair[0])
		if err != nil {
			return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: %w", mint, err)
		}
		info, err := DecodeMint(data)
		if err != nil {
			return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: %w", mint, err)
		}
		return info, nil
	}

	var parsed parsedData
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: %w", mint, err)
	}
	if parsed.Parsed.Type != "mint" {
		return MintInfo{}, fmt.Errorf("solanarpc: getAccountInfo %s: %w (%q)", mint, ErrNotMint, parsed.Parsed.Type)
	}
	return parsed.Parsed.Info, nil
}

// ErrNotMint is returned for accounts that are not token mints.
var ErrNotMint = errors.New("not a mint")
