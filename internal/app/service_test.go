package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/triage/internal/adapters/artifact"
	service "github.com/okian/triage/internal/app"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/predict"
	"github.com/okian/triage/internal/mockdata"
	"github.com/okian/triage/pkg/logger"
)

var fixture *mockdata.Fixture

var fixedNow = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	_ = logger.Init()
	f, err := mockdata.TrainFixture(context.Background(), 200, 11)
	if err != nil {
		panic(err)
	}
	fixture = f
	os.Exit(m.Run())
}

func startWithFixture(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	all := append([]service.Option{
		service.WithBundle(fixture.Bundle),
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithWorkerCount(4),
	}, opts...)
	svc := service.New(all...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it is not started and not ready", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Ready(), ShouldBeFalse)
			So(svc.ModelVersion(), ShouldEqual, predict.DefaultModelVersion)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(512),
			service.WithModelVersion("2.1.0"),
		)

		Convey("Then the options are reported", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 512)
			So(svc.ModelVersion(), ShouldEqual, "2.1.0")
		})
	})
}

func TestService_StartWithoutBundle(t *testing.T) {
	Convey("Given artifact directories with nothing in them", t, func() {
		root := t.TempDir()
		svc := service.New(service.WithArtifactDirs(filepath.Join(root, "models"), filepath.Join(root, "data")))
		defer svc.Stop()

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())

			Convey("Then it starts but is not ready", func() {
				So(err, ShouldBeNil)
				So(svc.Ready(), ShouldBeFalse)
				So(errors.Is(svc.LoadError(), artifact.ErrMissingArtifact), ShouldBeTrue)

				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["ready"], ShouldEqual, false)
				So(stats["loadError"], ShouldNotBeEmpty)
			})

			Convey("Then every prediction path reports not ready", func() {
				ctx := context.Background()
				_, err := svc.Predict(ctx, "a", "b", 0.5)
				So(errors.Is(err, model.ErrNotReady), ShouldBeTrue)

				_, err = svc.PredictBatch(ctx, []model.Request{{Title: "a", Description: "b"}}, 0.5)
				So(errors.Is(err, model.ErrNotReady), ShouldBeTrue)

				_, err = svc.ModelInfo(ctx)
				So(errors.Is(err, model.ErrNotReady), ShouldBeTrue)
			})
		})
	})
}

func TestService_StrictVersion(t *testing.T) {
	Convey("Given a bundle trained under another version", t, func() {
		Convey("When the version check is strict", func() {
			svc := startWithFixture(t, service.WithModelVersion("9.9.9"), service.WithStrictModelVersion(true))
			defer svc.Stop()

			So(svc.Ready(), ShouldBeFalse)
			So(errors.Is(svc.LoadError(), predict.ErrVersionMismatch), ShouldBeTrue)
		})

		Convey("When the version check is lenient", func() {
			svc := startWithFixture(t, service.WithModelVersion("9.9.9"))
			defer svc.Stop()

			So(svc.Ready(), ShouldBeTrue)
			pred, err := svc.Predict(context.Background(), "Password reset needed", "I can't log into my account", 0.6)
			So(err, ShouldBeNil)
			So(pred.ModelVersion, ShouldEqual, "9.9.9")
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startWithFixture(t)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it is marked as stopped and keeps its bundle", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Ready(), ShouldBeTrue)
			})

			Convey("Then batches are refused while single predictions still work", func() {
				ctx := context.Background()
				_, err := svc.PredictBatch(ctx, []model.Request{{Title: "a", Description: "b"}}, 0.5)
				So(errors.Is(err, model.ErrBackpressure), ShouldBeTrue)

				_, err = svc.Predict(ctx, "a", "b", 0.5)
				So(err, ShouldBeNil)
			})

			Convey("Then stopping again is a no-op", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}

func TestService_OutlivesStartContext(t *testing.T) {
	Convey("Given a service started on a context that is later cancelled", t, func() {
		startCtx, cancel := context.WithCancel(context.Background())
		svc := service.New(
			service.WithBundle(fixture.Bundle),
			service.WithClock(func() time.Time { return fixedNow }),
			service.WithWorkerCount(2),
		)
		So(svc.Start(startCtx), ShouldBeNil)
		defer svc.Stop()
		cancel()

		Convey("When a batch arrives afterwards", func() {
			ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			got, err := svc.PredictBatch(ctx, []model.Request{
				{Title: "VPN down", Description: "cannot connect from home"},
				{Title: "Refund", Description: "charged twice this month"},
				{Title: "Password reset needed", Description: "I can't log into my account"},
			}, 0.6)

			Convey("Then the workers are still running and the service is ready", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 3)
				So(svc.Ready(), ShouldBeTrue)
			})
		})

		Convey("When the service is stopped", func() {
			svc.Stop()

			Convey("Then the queue is gone and stats no longer report it", func() {
				So(svc.GetStats()["queueLength"], ShouldBeNil)
			})
		})
	})
}
