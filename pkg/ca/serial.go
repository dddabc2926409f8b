package ca

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/afero"

	"github.com/proxyforge/certgen/pkg/util"
)

// Returns the next serial number for a signed certificate. The serial
// state file is created with a fresh random serial on first use and
// incremented on every signing after that, matching openssl's
// -CAcreateserial behavior.
func (ca *CA) nextSerialNumber() (*big.Int, error) {
	path := ca.path(FILE_CA_SERIAL)
	if !util.FileExists(ca.fs, path) {
		serialNumber, err := util.X509SerialNumber()
		if err != nil {
			ca.logger.Error(err)
			return nil, err
		}
		if err := ca.writeSerialState(path, serialNumber); err != nil {
			return nil, err
		}
		return serialNumber, nil
	}
	data, err := afero.ReadFile(ca.fs, path)
	if err != nil {
		ca.logger.Error(err)
		return nil, err
	}
	serialNumber, ok := new(big.Int).SetString(strings.TrimSpace(string(data)), 16)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSerialState, path)
	}
	serialNumber.Add(serialNumber, big.NewInt(1))
	if err := ca.writeSerialState(path, serialNumber); err != nil {
		return nil, err
	}
	return serialNumber, nil
}

func (ca *CA) writeSerialState(path string, serialNumber *big.Int) error {
	data := []byte(fmt.Sprintf("%X\n", serialNumber))
	if err := afero.WriteFile(ca.fs, path, data, 0644); err != nil {
		ca.logger.Error(err)
		return err
	}
	return nil
}
