package utils_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/kairos-io/cryptroot/internal/constants"
	"github.com/kairos-io/cryptroot/internal/utils"
	"github.com/moby/sys/mountinfo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

var _ = Describe("utils", func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/proc/cmdline": "",
		})
		Expect(err).ToNot(HaveOccurred())
		fakeCmdline, _ := fs.RawPath("/proc/cmdline")
		err = os.Setenv("HOST_PROC_CMDLINE", fakeCmdline)
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		cleanup()
		Expect(os.Unsetenv("HOST_PROC_CMDLINE")).To(Succeed())
	})

	Context("ReadCMDLineArg", func() {
		BeforeEach(func() {
			err := fs.WriteFile("/proc/cmdline", []byte("test/key=value1 rd.cryptroot.debug root=LABEL=FAKE_LABEL empty=\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
		})
		It("splits arguments from cmdline", func() {
			value := utils.ReadCMDLineArg("test/key=")
			Expect(value).To(Equal([]string{"value1"}))
			value = utils.ReadCMDLineArg("empty=")
			Expect(value).To(Equal([]string{""}))
		})
		It("returns properly for stanzas without value", func() {
			Expect(utils.ReadCMDLineArg("rd.cryptroot.debug")).To(HaveLen(1))
			Expect(utils.ReadCMDLineArg("rd.cryptroot.nothere")).To(BeEmpty())
		})
		It("turns on debug from the cmdline", func() {
			Expect(utils.IsDebug()).To(BeTrue())
		})
	})

	Context("UniqueSlice", func() {
		It("Removes duplicates keeping order", func() {
			dups := []string{"a", "b", "c", "d", "b", "a"}
			Expect(utils.UniqueSlice(dups)).To(Equal([]string{"a", "b", "c", "d"}))
		})
	})
	Context("CleanupSlice", func() {
		It("Cleans up the slice of empty values", func() {
			Expect(utils.CleanupSlice([]string{"", " "})).To(BeEmpty())
			Expect(utils.CleanupSlice([]string{" /var ", "", "/home"})).To(Equal([]string{"/var", "/home"}))
		})
	})

	Context("env files", func() {
		var tmpDir string
		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "")
			Expect(err).ToNot(HaveOccurred())
			err = os.WriteFile(filepath.Join(tmpDir, "cryptroot.env"), []byte("CRYPTROOT_MOUNT_ROOT=\"/target\"\nCRYPTROOT_TEST_DISK_INDEX=1\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
		})
		AfterEach(func() {
			os.RemoveAll(tmpDir)
			os.Unsetenv("CRYPTROOT_MOUNT_ROOT")
			os.Unsetenv("CRYPTROOT_TEST_DISK_INDEX")
		})
		It("Parses correctly an env file", func() {
			env, err := utils.ReadEnv(filepath.Join(tmpDir, "cryptroot.env"))
			Expect(err).ToNot(HaveOccurred())
			Expect(env).To(HaveKeyWithValue("CRYPTROOT_MOUNT_ROOT", "/target"))
			Expect(env).To(HaveKeyWithValue("CRYPTROOT_TEST_DISK_INDEX", "1"))
		})
		It("loads env files without overriding existing values and skips missing ones", func() {
			Expect(os.Setenv("CRYPTROOT_TEST_DISK_INDEX", "0")).To(Succeed())
			err := utils.LoadEnv(filepath.Join(tmpDir, "missing.env"), filepath.Join(tmpDir, "cryptroot.env"))
			Expect(err).ToNot(HaveOccurred())
			Expect(os.Getenv("CRYPTROOT_MOUNT_ROOT")).To(Equal("/target"))
			Expect(os.Getenv("CRYPTROOT_TEST_DISK_INDEX")).To(Equal("0"))
		})
	})

	Context("PartitionDevice", func() {
		It("appends the number to plain disks", func() {
			Expect(utils.PartitionDevice("/dev/sdb", 2)).To(Equal("/dev/sdb2"))
			Expect(utils.PartitionDevice("/dev/vda", 1)).To(Equal("/dev/vda1"))
		})
		It("uses the p separator when the disk name ends in a digit", func() {
			Expect(utils.PartitionDevice("/dev/nvme0n1", 2)).To(Equal("/dev/nvme0n1p2"))
			Expect(utils.PartitionDevice("/dev/mmcblk0", 1)).To(Equal("/dev/mmcblk0p1"))
			Expect(utils.PartitionDevice("/dev/loop0", 3)).To(Equal("/dev/loop0p3"))
		})
	})

	Context("mount filters", func() {
		infos := []*mountinfo.Info{
			{Source: "/dev/sda2", Mountpoint: "/"},
			{Source: "/dev/sdb1", Mountpoint: "/media/usb"},
			{Source: "/dev/sdbc1", Mountpoint: "/media/other"},
			{Source: "/dev/nvme0n1p2", Mountpoint: "/mnt"},
			{Source: "/dev/nvme0n1p1", Mountpoint: "/mnt/efi"},
			{Source: "tmpfs", Mountpoint: "/mntx"},
		}
		It("finds the mounts of a disk", func() {
			res := utils.DiskMounts("/dev/sdb", infos)
			Expect(res).To(HaveLen(1))
			Expect(res[0].Mountpoint).To(Equal("/media/usb"))
			Expect(utils.DiskMounts("/dev/nvme0n1", infos)).To(HaveLen(2))
			Expect(utils.DiskMounts("/dev/sdc", infos)).To(BeEmpty())
		})
		It("finds the mounts under a directory", func() {
			res := utils.MountsUnder("/mnt/", infos)
			Expect(res).To(HaveLen(2))
		})
	})

	Context("passphrase", func() {
		AfterEach(func() {
			os.Unsetenv(constants.PassphraseEnv)
		})
		It("reads it from a file dropping the trailing newline", func() {
			p, err := fs.RawPath("/proc/cmdline")
			Expect(err).ToNot(HaveOccurred())
			Expect(os.WriteFile(p, []byte("correct horse\n"), 0600)).To(Succeed())
			secret, err := utils.ReadPassphrase(p)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(secret)).To(Equal("correct horse"))
		})
		It("fails on empty files", func() {
			p, _ := fs.RawPath("/proc/cmdline")
			_, err := utils.ReadPassphrase(p)
			Expect(errors.Is(err, constants.ErrNoPassphrase)).To(BeTrue())
		})
		It("falls back to the environment", func() {
			Expect(os.Setenv(constants.PassphraseEnv, "from env")).To(Succeed())
			secret, err := utils.ReadPassphrase("")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(secret)).To(Equal("from env"))
		})
		It("asks twice on a terminal", func() {
			answers := [][]byte{[]byte("one"), []byte("one")}
			read := func() ([]byte, error) {
				a := answers[0]
				answers = answers[1:]
				return a, nil
			}
			var out bytes.Buffer
			secret, err := utils.PromptPassphrase(&out, read)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(secret)).To(Equal("one"))
			Expect(out.String()).To(ContainSubstring("Confirm passphrase"))

			answers = [][]byte{[]byte("one"), []byte("two")}
			_, err = utils.PromptPassphrase(&out, read)
			Expect(err).To(HaveOccurred())
		})
	})
})
