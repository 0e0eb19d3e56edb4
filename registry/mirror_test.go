package registry_test

import (
	"bytes"
	"context"
	"errors"

	"github.com/icecave/sniroute/registry"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var errUnavailable = errors.New("registry unavailable")

// failingRegistry fails every operation.
type failingRegistry struct{}

func (failingRegistry) Get(context.Context, registry.Key) (string, bool, error) {
	return "", false, errUnavailable
}

func (failingRegistry) Set(context.Context, registry.Key, string) error {
	return errUnavailable
}

func (failingRegistry) Clear(context.Context, registry.Namespace) error {
	return errUnavailable
}

func (failingRegistry) Entries(context.Context, registry.Namespace) (map[string]string, error) {
	return nil, errUnavailable
}

var _ = Describe("Mirror", func() {
	var (
		ctx                context.Context
		primary, secondary *registry.Memory
		logs               bytes.Buffer
		logger             *logrus.Logger
		subject            *registry.Mirror
	)

	BeforeEach(func() {
		ctx = context.Background()
		primary = &registry.Memory{}
		secondary = &registry.Memory{}

		logs.Reset()
		logger = logrus.New()
		logger.Out = &logs

		subject = &registry.Mirror{
			Primary:   primary,
			Secondary: secondary,
			Logger:    logger,
		}
	})

	It("writes to both registries", func() {
		err := subject.Set(ctx, registry.BulkKey, "<bulk>")
		Expect(err).ShouldNot(HaveOccurred())

		v, _, _ := primary.Get(ctx, registry.BulkKey)
		Expect(v).To(Equal("<bulk>"))
		v, _, _ = secondary.Get(ctx, registry.BulkKey)
		Expect(v).To(Equal("<bulk>"))
	})

	It("reads from the primary registry only", func() {
		secondary.Set(ctx, registry.BulkKey, "<bulk>")

		_, ok, err := subject.Get(ctx, registry.BulkKey)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("clears both registries", func() {
		subject.Set(ctx, registry.HostKey("a.com"), "<a>")

		err := subject.Clear(ctx, registry.Hosts)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(primary.Len(registry.Hosts)).To(Equal(0))
		Expect(secondary.Len(registry.Hosts)).To(Equal(0))
	})

	It("logs but does not return secondary failures", func() {
		subject.Secondary = failingRegistry{}

		err := subject.Set(ctx, registry.BulkKey, "<bulk>")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(logs.String()).To(ContainSubstring("could not mirror registry value"))

		v, _, _ := primary.Get(ctx, registry.BulkKey)
		Expect(v).To(Equal("<bulk>"))
	})

	It("returns primary failures without writing to the secondary", func() {
		subject.Primary = failingRegistry{}

		err := subject.Set(ctx, registry.BulkKey, "<bulk>")
		Expect(err).To(MatchError(errUnavailable))

		_, ok, _ := secondary.Get(ctx, registry.BulkKey)
		Expect(ok).To(BeFalse())
	})

	Describe("Restore", func() {
		It("copies the secondary registry into the primary registry", func() {
			secondary.Set(ctx, registry.BulkKey, "<bulk>")
			secondary.Set(ctx, registry.HostKey("a.com"), "<a>")

			n, err := subject.Restore(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal(2))

			v, _, _ := primary.Get(ctx, registry.BulkKey)
			Expect(v).To(Equal("<bulk>"))
			v, _, _ = primary.Get(ctx, registry.HostKey("a.com"))
			Expect(v).To(Equal("<a>"))
		})

		It("returns errors from the secondary registry", func() {
			subject.Secondary = failingRegistry{}

			n, err := subject.Restore(ctx)
			Expect(err).Should(HaveOccurred())
			Expect(n).To(Equal(0))
		})
	})
})
