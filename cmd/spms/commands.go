package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spms/internal/config"
	"spms/internal/db"
	"spms/internal/domain"
	"spms/internal/engine"
	"spms/internal/migrate"
	"spms/internal/repo"
)

func bootstrapCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "bootstrap <user-id>",
		Short: "Create the first administrator in an empty workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.Bootstrap(ctx, args[0], name, email)
				if err != nil {
					return err
				}
				if !created {
					return fmt.Errorf("workspace already has users; ask an administrator to add %s", args[0])
				}
				schema, err := migrate.Latest()
				if err != nil {
					return err
				}
				fmt.Printf("Created administrator %s in %s (schema v%d)\n", args[0], db.Path(viper.GetString("workspace")), schema)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userListCmd())
	u.AddCommand(userCreateCmd())
	u.AddCommand(userUpdateCmd())
	return u
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.DisplayName, u.Email, u.IsSuperuser})
				}
				return printRows(users, table.Row{"ID", "Name", "Email", "Admin"}, rows)
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create user (administrators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			opts.ID = args[0]
			opts.ActorID = actor
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().BoolVar(&opts.IsSuperuser, "admin", false, "grant administrator rights")
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, email string
	var admin bool
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update user name, email or administrator flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			opts := engine.UserUpdateOptions{
				ID:          args[0],
				DisplayName: optionalString(cmd, "name", name),
				Email:       optionalString(cmd, "email", email),
				ActorID:     actor,
			}
			if cmd.Flags().Changed("admin") {
				opts.IsSuperuser = &admin
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.UpdateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address (empty clears it)")
	cmd.Flags().BoolVar(&admin, "admin", false, "administrator flag")
	return cmd
}

func areaCmd() *cobra.Command {
	a := &cobra.Command{Use: "area", Short: "Manage business areas"}
	a.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List business areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				areas, err := e.Repo.ListBusinessAreas(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(areas))
				for _, a := range areas {
					leader := "-"
					if a.LeaderID != nil {
						leader = *a.LeaderID
					}
					rows = append(rows, table.Row{a.ID, a.Name, leader})
				}
				return printRows(areas, table.Row{"ID", "Name", "Leader"}, rows)
			})
		},
	})

	var leader string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create business area (administrators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				area, err := e.CreateBusinessArea(ctx, args[0], optionalString(cmd, "leader", leader), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(area)
			})
		},
	}
	create.Flags().StringVar(&leader, "leader", "", "business area lead user id")
	a.AddCommand(create)

	var clearLeader bool
	setLeader := &cobra.Command{
		Use:   "set-leader <area-id> [user-id]",
		Short: "Set or clear the business area lead",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			var leaderID *string
			switch {
			case clearLeader:
			case len(args) == 2:
				leaderID = &args[1]
			default:
				return fmt.Errorf("give a user id or --clear")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				area, err := e.SetBusinessAreaLeader(ctx, args[0], leaderID, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(area)
			})
		},
	}
	setLeader.Flags().BoolVar(&clearLeader, "clear", false, "remove the current lead")
	a.AddCommand(setLeader)
	return a
}

func directorateCmd() *cobra.Command {
	d := &cobra.Command{Use: "directorate", Short: "Manage directorate membership"}
	d.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List directorate members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListDirectorate(ctx, nil)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.DisplayName, u.Email})
				}
				return printRows(users, table.Row{"ID", "Name", "Email"}, rows)
			})
		},
	})
	d.AddCommand(&cobra.Command{
		Use:   "add <user-id>",
		Short: "Add a directorate member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AddDirectorateMember(ctx, args[0], actor)
			})
		},
	})
	d.AddCommand(&cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a directorate member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveDirectorateMember(ctx, args[0], actor)
			})
		},
	})
	return d
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectMemberCmd())
	prj.AddCommand(projectRecipientsCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projects, err := e.Repo.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(projects))
				for _, p := range projects {
					area := "-"
					if p.BusinessAreaID != nil {
						area = *p.BusinessAreaID
					}
					rows = append(rows, table.Row{p.ID, p.Title, p.Kind, p.Status, area})
				}
				return printRows(projects, table.Row{"ID", "Title", "Kind", "Status", "Business area"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&f.BusinessAreaID, "area", "", "filter by business area")
	cmd.Flags().StringVar(&f.MemberID, "member", "", "filter by member")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var initial string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			opts.Title = args[0]
			opts.ActorID = actor
			if initial != "" {
				kind, err := domain.ParseDocumentKind(initial)
				if err != nil {
					return err
				}
				opts.InitialDocument = kind
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "science", "science, student, external or core_function")
	cmd.Flags().StringVar(&opts.BusinessAreaID, "area", "", "business area id")
	cmd.Flags().StringVar(&opts.LeadID, "lead", "", "project lead (defaults to the actor)")
	cmd.Flags().StringVar(&initial, "document", "concept", "initial document kind, empty for none")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show project with members and documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.Repo.GetProject(ctx, nil, id)
				if err != nil {
					return err
				}
				members, err := e.Repo.ListProjectMembers(ctx, nil, id)
				if err != nil {
					return err
				}
				docs, err := e.Repo.ListDocuments(ctx, repo.DocumentFilters{ProjectID: id})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"project": p, "members": members, "documents": docs})
			})
		},
	}
}

func projectUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set current project for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("project id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "SPMS_DEFAULT_PROJECT", id); err != nil {
				return err
			}
			fmt.Printf("Set SPMS_DEFAULT_PROJECT=%s in %s/.env\n", id, workspace)
			return nil
		},
	}
}

func projectStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <status>",
		Short: "Override project status (administrators only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.SetProjectStatus(ctx, id, domain.ProjectStatus(args[0]), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var title, area string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit the project title or business area (--area \"\" detaches it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
					ID:             id,
					Title:          optionalString(cmd, "title", title),
					BusinessAreaID: optionalString(cmd, "area", area),
					ActorID:        actor,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&area, "area", "", "business area id")
	return cmd
}

func projectMemberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	var role string
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Add or change a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				member, err := e.AddProjectMember(ctx, id, args[0], role, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(member)
			})
		},
	}
	add.Flags().StringVar(&role, "role", domain.MemberRoleMember, "lead or member")
	m.AddCommand(add)
	m.AddCommand(&cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				if err := e.RemoveProjectMember(ctx, id, args[0], actor); err != nil {
					return err
				}
				fmt.Printf("Removed %s from %s\n", args[0], id)
				return nil
			})
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				members, err := e.Repo.ListProjectMembers(ctx, nil, id)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(members))
				for _, mem := range members {
					rows = append(rows, table.Row{mem.UserID, mem.Role, mem.CreatedAt})
				}
				return printRows(members, table.Row{"User", "Role", "Since"}, rows)
			})
		},
	})
	return m
}

func projectRecipientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipients",
		Short: "Show who document notifications go to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				rec, err := e.Repo.LoadRecipients(ctx, nil, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
}

func docCmd() *cobra.Command {
	d := &cobra.Command{Use: "doc", Short: "Work with project documents"}
	d.AddCommand(docCreateCmd())
	d.AddCommand(docListCmd())
	d.AddCommand(docShowCmd())
	d.AddCommand(docActCmd())
	d.AddCommand(docFeedbackCmd())
	return d
}

func docCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <kind>",
		Short: "Start a document at the lead stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			kind, err := domain.ParseDocumentKind(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				doc, err := e.CreateDocument(ctx, id, kind, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	}
}

func docListCmd() *cobra.Command {
	var f repo.DocumentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := projectID(ctx, e)
				if err != nil {
					return err
				}
				f.ProjectID = id
				docs, err := e.Repo.ListDocuments(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(docs))
				for _, doc := range docs {
					rows = append(rows, table.Row{doc.ID, doc.Kind, doc.Stage, doc.ApprovalStatus, doc.Version})
				}
				return printRows(docs, table.Row{"ID", "Kind", "Stage", "Approval", "Version"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "filter by kind")
	cmd.Flags().IntVar(&f.Stage, "stage", 0, "filter by stage")
	return cmd
}

func docShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Repo.GetDocument(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	}
}

func docActCmd() *cobra.Command {
	var feedbackFile, feedback string
	var noEmail bool
	var stage int
	var version int64
	cmd := &cobra.Command{
		Use:   "act <document-id> <approve|recall|send_back|reopen>",
		Short: "Apply a review action to a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			action, err := domain.ParseAction(args[1])
			if err != nil {
				return err
			}
			if feedbackFile != "" {
				data, err := os.ReadFile(feedbackFile)
				if err != nil {
					return err
				}
				feedback = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.Repo.GetDocument(ctx, args[0])
				if err != nil {
					return fmt.Errorf("document %s: %w", args[0], err)
				}
				res, err := e.Transition(ctx, engine.TransitionRequest{
					ProjectID:       doc.ProjectID,
					DocumentID:      doc.ID,
					Stage:           domain.Stage(stage),
					Version:         version,
					Action:          action,
					ActorID:         actor,
					ShouldSendEmail: !noEmail,
					FeedbackHTML:    feedback,
				})
				if err != nil {
					if viper.GetBool("json") {
						_ = printJSON(res)
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s %s: stage %s -> %s (%s), version %d\n",
					res.Action, res.DocumentID, res.PreviousStage, res.NewStage, res.NewApprovalStatus, res.Version)
				if res.DocumentDeleted {
					fmt.Println("document deleted")
				}
				if res.Successor != nil {
					fmt.Printf("created %s %s\n", res.Successor.Kind, res.Successor.ID)
				}
				if res.RetractedSuccessor != "" {
					fmt.Printf("withdrew successor %s\n", res.RetractedSuccessor)
				}
				for _, w := range res.Warnings {
					fmt.Println("warning:", w)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "reviewer feedback (HTML)")
	cmd.Flags().StringVar(&feedbackFile, "feedback-file", "", "read reviewer feedback from a file")
	cmd.Flags().BoolVar(&noEmail, "no-email", false, "suppress notification (administrators only)")
	cmd.Flags().IntVar(&stage, "expect-stage", 0, "fail unless the document is at this stage")
	cmd.Flags().Int64Var(&version, "expect-version", 0, "fail unless the document has this version")
	return cmd
}

func docFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <document-id>",
		Short: "List reviewer feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListFeedback(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, f := range items {
					rows = append(rows, table.Row{f.CreatedAt, f.Stage, f.Action, f.AuthorID, f.HTML})
				}
				return printRows(items, table.Row{"When", "Stage", "Action", "Author", "Feedback"}, rows)
			})
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage system config"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show system config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.CurrentConfig(ctx))
			})
		},
	})

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write system config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.CurrentConfig(ctx).ToYAML()
				if err != nil {
					return err
				}
				if out == "" {
					_, err = os.Stdout.Write(data)
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	export.Flags().StringVar(&out, "file", "", "output path (stdout when empty)")
	c.AddCommand(export)

	var in string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Import system config from YAML into the DB (administrators only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			cfg, err := config.FromFile(in)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.UpdateConfig(ctx, cfg, actor); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	imp.Flags().StringVar(&in, "file", "", "path to YAML config")
	_ = imp.MarkFlagRequired("file")
	c.AddCommand(imp)

	c.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	})
	return c
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.ProjectID = strings.TrimSpace(viper.GetString("project"))
				evts, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(evts))
				for _, evt := range evts {
					rows = append(rows, table.Row{evt.ID, evt.TS, evt.Type, evt.ProjectID, evt.EntityID, evt.ActorID})
				}
				return printRows(evts, table.Row{"ID", "When", "Type", "Project", "Entity", "Actor"}, rows)
			})
		},
	}
	tail.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	l.AddCommand(tail)
	return l
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			if owner == "" {
				owner = actor
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, key, err := e.CreateAPIKey(ctx, owner, name, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": plain, "id": key.ID, "user_id": key.UserID})
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, key.UserID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")
	create.Flags().StringVar(&owner, "user", "", "owner (administrators only, defaults to the actor)")
	k.AddCommand(create)

	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, table.Row{key.ID, key.Name, key.CreatedAt})
				}
				return printRows(keys, table.Row{"ID", "Name", "Created"}, rows)
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0], actor)
			})
		},
	})
	return k
}
