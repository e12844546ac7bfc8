package keymanager_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oasislabs/oasis-chain/foundation/chain/keymanager"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_MockClient(t *testing.T) {
	idA := keymanager.ContractIDFromAddress(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	idB := keymanager.ContractIDFromAddress(common.HexToAddress("0x2222222222222222222222222222222222222222"))

	t.Log("Given the need to manage contract key bundles.")
	{
		t.Log("\tTest 0:\tWhen asking for the same contract twice.")
		{
			mc := keymanager.NewMockClient()

			first, err := mc.GetOrCreateKeys(idA)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to create keys: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to create keys.", success)

			second, err := mc.GetOrCreateKeys(idA)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to fetch keys: %v", failed, err)
			}

			if first.StateKey != second.StateKey || first.InputKeyPair.PK != second.InputKeyPair.PK {
				t.Fatalf("\t%s\tTest 0:\tShould return the same bundle on every call.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould return the same bundle on every call.", success)
		}

		t.Log("\tTest 1:\tWhen asking for two different contracts.")
		{
			mc := keymanager.NewMockClient()

			a, err := mc.GetOrCreateKeys(idA)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to create keys: %v", failed, err)
			}
			b, err := mc.GetOrCreateKeys(idB)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to create keys: %v", failed, err)
			}

			if a.StateKey == b.StateKey {
				t.Fatalf("\t%s\tTest 1:\tShould isolate key material per contract.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould isolate key material per contract.", success)
		}

		t.Log("\tTest 2:\tWhen asking for the public key.")
		{
			mc := keymanager.NewMockClient()

			bundle, err := mc.GetOrCreateKeys(idA)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to create keys: %v", failed, err)
			}

			spk, err := mc.GetPublicKey(idA)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to fetch the public key: %v", failed, err)
			}
			if spk == nil || spk.Key != bundle.InputKeyPair.PK {
				t.Fatalf("\t%s\tTest 2:\tShould match the bundle's input public key.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould match the bundle's input public key.", success)
		}
	}
}
