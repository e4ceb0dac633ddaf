package op

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kairos-io/cryptroot/pkg/runner"
	"github.com/kairos-io/cryptroot/pkg/schema"
)

// WipeTable destroys the GPT and MBR structures on disk.
func WipeTable(disk string) Operation {
	return newOp("Wiping partition table", "sgdisk", "-Z", disk)
}

// CreatePartitions creates every partition with a single sgdisk call,
// one create/type/name triple per partition.
func CreatePartitions(disk string, parts []schema.PartitionSpec) Operation {
	args := []string{"sgdisk"}
	for _, p := range parts {
		start := p.Start
		if start == "" {
			start = "0"
		}
		args = append(args,
			fmt.Sprintf("-n%d:%s:%s", p.Number, start, p.Size),
			fmt.Sprintf("-t%d:%s", p.Number, p.PartitionType()),
			fmt.Sprintf("-c%d:%s", p.Number, p.Label),
		)
	}
	args = append(args, disk)
	return newOp("Creating partitions", args...)
}

// ConvertToMBR turns the freshly created GPT into an MBR table holding the given partitions.
func ConvertToMBR(disk string, parts []schema.PartitionSpec) Operation {
	numbers := make([]string, 0, len(parts))
	for _, p := range parts {
		numbers = append(numbers, strconv.Itoa(p.Number))
	}
	return newOp("Converting partition table to MBR", "sgdisk", "-m", strings.Join(numbers, ":"), disk)
}

func Partprobe(disk string) Operation {
	return newOp("Updating kernel partition table", "partprobe", "-s", disk)
}

// LuksFormat formats device reading the passphrase from stdin.
func LuksFormat(device string, kind schema.CryptKind, label string, passphrase []byte) Operation {
	if kind == "" {
		kind = schema.LUKS2
	}
	args := []string{"cryptsetup", "--batch-mode", "luksFormat", fmt.Sprintf("--type=%s", kind)}
	if label != "" {
		args = append(args, fmt.Sprintf("--label=%s", label))
	}
	args = append(args, "--key-file=-", device)
	o := newOp("Encrypting root partition", args...)
	o.Options = []runner.Option{runner.WithSecretStdin(passphrase)}
	return o
}

// LuksOpen maps device to /dev/mapper/name reading the passphrase from stdin.
func LuksOpen(device, name string, passphrase []byte) Operation {
	o := newOp("Opening LUKS volume", "cryptsetup", "luksOpen", "--key-file=-", device, name)
	o.Options = []runner.Option{runner.WithSecretStdin(passphrase)}
	return o
}

func LuksClose(name string) Operation {
	return newOp(fmt.Sprintf("Closing LUKS volume %s", name), "cryptsetup", "luksClose", name)
}
