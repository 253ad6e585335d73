package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups everything mounted under the API prefix.
type Handlers struct {
	Imports     *ImportHandler
	Students    *StudentHandler
	Meetings    *MeetingHandler
	Plans       *PlanHandler
	Enrollments *EnrollmentHandler
	Progress    *ProgressHandler
	Audit       *AuditHandler
	Courses     *CourseHandler
}

// Register mounts the API routes on group. Every route expects the actor
// middleware to have run.
func Register(group gin.IRouter, h Handlers) {
	imports := group.Group("/imports")
	imports.POST("/schedule", h.Imports.ImportSchedule)
	imports.POST("/students", h.Imports.ImportStudents)
	imports.GET("/:id", h.Imports.ImportReport)

	students := group.Group("/students")
	students.GET("", h.Students.List)
	students.POST("", h.Students.Create)
	students.GET("/:id", h.Students.Get)
	students.PUT("/:id", h.Students.Update)
	students.DELETE("/:id", h.Students.Delete)
	students.GET("/:id/meetings", h.Meetings.List)
	students.POST("/:id/meetings", h.Meetings.Create)
	students.GET("/:id/plans", h.Plans.ListVersions)
	students.POST("/:id/plans", h.Plans.CreateVersion)
	students.POST("/:id/plans/close", h.Plans.CloseAndSucceed)
	students.GET("/:id/enrollments", h.Enrollments.List)
	students.POST("/:id/enrollments", h.Enrollments.Create)
	students.POST("/:id/enrollments/from-plan", h.Enrollments.FromPlan)
	students.GET("/:id/progress", h.Progress.StudentProgress)

	group.DELETE("/meetings/:id", h.Meetings.Delete)

	group.GET("/plans/:id/items", h.Plans.ListItems)
	group.POST("/plans/:id/items", h.Plans.AddItem)
	group.DELETE("/plans/:id/items/:item_id", h.Plans.RemoveItem)

	group.PATCH("/enrollments/:id", h.Enrollments.Update)
	group.DELETE("/enrollments/:id", h.Enrollments.Delete)

	group.GET("/metrics/cohorts/:cohort", h.Progress.Cohort)
	group.GET("/metrics/programs/:program", h.Progress.Program)
	group.GET("/reports/course-demand", h.Progress.CourseDemand)
	group.GET("/reports/module-demand", h.Progress.ModuleDemand)
	group.GET("/reports/risk", h.Progress.RiskRoster)

	group.GET("/audit", h.Audit.List)
	group.GET("/audit/stats", h.Audit.Stats)

	group.GET("/courses", h.Courses.List)
	group.GET("/courses/:id", h.Courses.Get)
}
