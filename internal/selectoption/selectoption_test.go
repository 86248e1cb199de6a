package selectoption_test

import (
	"context"
	"testing"

	"github.com/aolus-software/rbac-api/internal/core/datamodel/dbtest"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/selectoption"
	"github.com/aolus-software/rbac-api/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSelectOption(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Select Option Suite")
}

var _ = Describe("Select options", func() {
	var svc *selectoption.Service

	BeforeEach(func() {
		db, err := dbtest.Open()
		Expect(err).NotTo(HaveOccurred())

		for _, p := range []*rbac.Permission{
			{Name: "user list", Group: "user"},
			{Name: "role list", Group: "role"},
			{Name: "user edit", Group: "user"},
			{Name: "ping", Group: ""},
		} {
			Expect(db.Create(p).Error).NotTo(HaveOccurred())
		}
		for _, name := range []string{"support", rbac.SuperuserRole, "admin"} {
			Expect(db.Create(&rbac.Role{Name: name}).Error).NotTo(HaveOccurred())
		}

		svc = selectoption.NewService(selectoption.NewRepository(db), logger.Discard())
	})

	It("groups permissions and falls back for empty groups", func() {
		groups, err := svc.Permissions(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(groups).To(HaveLen(3))
		Expect(groups[0].Group).To(Equal(rbac.DefaultPermissionGroup))
		Expect(groups[1].Group).To(Equal("role"))
		Expect(groups[2].Group).To(Equal("user"))
		Expect(groups[2].Permissions).To(HaveLen(2))
		Expect(groups[2].Permissions[0].Name).To(Equal("user edit"))
	})

	It("lists roles by name without the superuser", func() {
		roles, err := svc.Roles(context.Background())
		Expect(err).NotTo(HaveOccurred())

		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = r.Name
		}
		Expect(names).To(Equal([]string{"admin", "support"}))
	})
})
