package runner

import "time"

// Options are the per call knobs of Run.
type Options struct {
	DryRun        bool
	Chroot        bool
	Timeout       time.Duration
	CheckExitCode bool
	Shell         bool
	Stdin         []byte
	// SecretStdin keeps even the size of Stdin out of the logs.
	SecretStdin bool
	Dir         string
}

type Option func(*Options)

// Apply returns the options resulting from opts over the defaults.
func Apply(opts ...Option) Options {
	o := Options{CheckExitCode: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithDryRun(dry bool) Option {
	return func(o *Options) { o.DryRun = dry }
}

// WithChroot runs the command inside the mount root.
func WithChroot() Option {
	return func(o *Options) { o.Chroot = true }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithoutExitCheck makes a non-zero exit a normal result instead of an error.
func WithoutExitCheck() Option {
	return func(o *Options) { o.CheckExitCode = false }
}

// WithShell hands the command to sh -c instead of splitting it into words.
func WithShell() Option {
	return func(o *Options) { o.Shell = true }
}

func WithStdin(s string) Option {
	return func(o *Options) { o.Stdin = []byte(s) }
}

// WithSecretStdin feeds secret on stdin. It never reaches argv or the logs.
func WithSecretStdin(secret []byte) Option {
	return func(o *Options) {
		o.Stdin = secret
		o.SecretStdin = true
	}
}

func WithDir(dir string) Option {
	return func(o *Options) { o.Dir = dir }
}
